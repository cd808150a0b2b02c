// Package analysis implements the bounded, multi-pass, budget-constrained
// analysis loop the analyzer agent runs once per work item.
package analysis

import (
	"regexp"

	"nightwatch-agent/src/contracts"
)

// Complexity classifies how much investigation an error is likely to need.
type Complexity int

const (
	// ComplexitySimple covers well-understood error shapes with a trace
	// pointing at the offending line.
	ComplexitySimple Complexity = iota
	// ComplexityModerate is the default.
	ComplexityModerate
	// ComplexityComplex covers resource exhaustion, concurrency and
	// ambiguous errors with little to go on.
	ComplexityComplex
)

func (c Complexity) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityComplex:
		return "complex"
	default:
		return "moderate"
	}
}

// Iteration ceilings per complexity class. The hard cap in Config bounds
// all of them.
const (
	simpleCeiling   = 6
	moderateCeiling = 10
	complexCeiling  = 15
)

// thinkingFloor is the fraction of the base thinking allowance late
// iterations keep.
const thinkingFloor = 0.25

var (
	simpleClassPattern = regexp.MustCompile(`(?i)(nil pointer|null ?pointer|NullPointerException|index out of range|IndexError|KeyError|not found|undefined method|no such file)`)

	complexClassPattern = regexp.MustCompile(`(?i)(out ?of ?memory|OOM|deadlock|data race|race condition|corrupt|segfault|SIGSEGV|intermittent|flaky)`)
)

// Classify buckets an error by its class and message shape. Cheap,
// mechanical errors get a small iteration ceiling; ambiguous or systemic
// ones get the large one.
func Classify(item contracts.ErrorReport) Complexity {
	subject := item.ErrorClass + " " + item.Message

	if complexClassPattern.MatchString(subject) {
		return ComplexityComplex
	}
	if simpleClassPattern.MatchString(subject) && len(item.StackTrace) > 0 {
		return ComplexitySimple
	}
	// No trace means the loop has to hunt for the failure site.
	if len(item.StackTrace) == 0 {
		return ComplexityComplex
	}
	return ComplexityModerate
}

// IterationCeiling returns the adaptive ceiling for a complexity class,
// never exceeding hardCap.
func IterationCeiling(c Complexity, hardCap int) int {
	var ceiling int
	switch c {
	case ComplexitySimple:
		ceiling = simpleCeiling
	case ComplexityComplex:
		ceiling = complexCeiling
	default:
		ceiling = moderateCeiling
	}
	if hardCap > 0 && ceiling > hardCap {
		ceiling = hardCap
	}
	return ceiling
}

// ThinkingBudget returns the deliberation allowance for one iteration:
// full for the first two, then linearly decayed toward the floor as the
// iteration count approaches the ceiling. Early iterations diagnose; late
// iterations mostly read files they already decided to read.
func ThinkingBudget(base, iteration, ceiling int) int {
	if base <= 0 {
		return 0
	}
	if iteration <= 2 || ceiling <= 3 {
		return base
	}
	span := float64(ceiling - 2)
	frac := 1.0 - float64(iteration-2)/span
	if frac < thinkingFloor {
		frac = thinkingFloor
	}
	return int(float64(base) * frac)
}
