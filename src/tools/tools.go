// Package tools provides the tool-execution boundary the analysis loop
// drives: the schema advertised to the model and a local implementation.
package tools

import (
	"context"
	"fmt"

	"nightwatch-agent/src/model"
)

// Tool names the model may request.
const (
	ToolReadFile      = "read_file"
	ToolSearchCode    = "search_code"
	ToolListDirectory = "list_directory"
	ToolGetTraces     = "get_traces"
)

// Executor runs one named tool. Implementations return the tool output as
// text, or an error the loop reinserts as a tool failure turn.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]string) (string, error)
}

// Specs returns the tool schema advertised on every model call, filtered to
// the given allowlist. An empty allowlist permits every tool.
func Specs(allow []string) []model.ToolSpec {
	all := []model.ToolSpec{
		{
			Name:        ToolReadFile,
			Description: "Read a source file from the repository",
			Parameters:  map[string]string{"path": "File path relative to the repository root"},
		},
		{
			Name:        ToolSearchCode,
			Description: "Search the repository for lines matching a query string",
			Parameters:  map[string]string{"query": "Literal text to search for"},
		},
		{
			Name:        ToolListDirectory,
			Description: "List the entries of a repository directory",
			Parameters:  map[string]string{"path": "Directory path relative to the repository root"},
		},
		{
			Name:        ToolGetTraces,
			Description: "Fetch recent stack traces for the error under analysis",
			Parameters:  map[string]string{"limit": "Maximum number of traces to return"},
		},
	}
	if len(allow) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[name] = true
	}
	var out []model.ToolSpec
	for _, spec := range all {
		if allowed[spec.Name] {
			out = append(out, spec)
		}
	}
	return out
}

// Truncate caps s at max bytes, appending a marker when content was cut.
// The loop applies it to every tool result before reinserting it into the
// conversation so one oversized file cannot blow up the request payload.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("\n... [truncated %d bytes]", len(s)-max)
}
