package contracts

// AgentType discriminates the role an agent plays in the pipeline.
// The set is closed; the registry rejects lookups of unknown types.
type AgentType string

const (
	AgentAnalyzer        AgentType = "analyzer"
	AgentResearcher      AgentType = "researcher"
	AgentPatternDetector AgentType = "pattern-detector"
	AgentReporter        AgentType = "reporter"
	AgentValidator       AgentType = "validator"
)

// AgentTypes lists every known agent type.
func AgentTypes() []AgentType {
	return []AgentType{
		AgentAnalyzer,
		AgentResearcher,
		AgentPatternDetector,
		AgentReporter,
		AgentValidator,
	}
}

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentAnalyzer, AgentResearcher, AgentPatternDetector, AgentReporter, AgentValidator:
		return true
	}
	return false
}

// AgentStatus is the lifecycle state of one agent instance. Only the agent
// itself moves it, and only while executing.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusWaiting   AgentStatus = "waiting"
	StatusCompleted AgentStatus = "completed"
	StatusFailed    AgentStatus = "failed"
)
