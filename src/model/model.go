// Package model defines the external language-model call boundary. The
// caller is a black box: given a system prompt, tool schema and
// conversation, it returns either a tool request or a final analysis.
package model

import (
	"context"
	"errors"

	"nightwatch-agent/src/contracts"
)

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Turn is one conversation entry.
type Turn struct {
	// One of the Role constants.
	Role string `json:"role"`
	// Turn text. For tool turns this is the (possibly truncated) tool output.
	Content string `json:"content"`
	// Tool that produced this turn, set on tool turns only.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolSpec describes one tool the model may request.
type ToolSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	// Parameter name -> description.
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Request is one model call.
type Request struct {
	// Model identifier from the agent config.
	Model string `json:"model"`
	// System prompt for the call.
	SystemPrompt string `json:"system_prompt"`
	// Tools the model may request.
	Tools []ToolSpec `json:"tools,omitempty"`
	// Conversation so far.
	Conversation []Turn `json:"conversation"`
	// Deliberation token allowance for this call; the loop decays it as
	// iterations approach the ceiling.
	ThinkingBudget int `json:"thinking_budget"`
}

// ToolRequest asks the loop to execute a named tool.
type ToolRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Usage reports token consumption of one call, required for budget
// accounting.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the call's total token cost.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Response is the outcome of one call: exactly one of ToolRequest or Final
// is set.
type Response struct {
	ToolRequest *ToolRequest             `json:"tool_request,omitempty"`
	Final       *contracts.ErrorAnalysis `json:"final,omitempty"`
	Usage       Usage                    `json:"usage"`
}

// Caller executes model calls.
type Caller interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Unavailable is the Caller for deployments without a model backend. Every
// call fails with the configured reason, which sends the pipeline down its
// legacy fallback path.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Call(ctx context.Context, req Request) (*Response, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no model backend configured"
	}
	return nil, errors.New(reason)
}
