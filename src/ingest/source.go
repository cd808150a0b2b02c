// Package ingest fetches reported errors and ranks them into the work-item
// list the analysis phase consumes.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/tools"
)

// Source is the error-reporting boundary. The query language of the
// upstream system (e.g. NRQL) lives behind it.
type Source interface {
	// FetchErrors returns the errors reported in the nightly window.
	FetchErrors(ctx context.Context) ([]contracts.ErrorReport, error)
}

// FileSource reads error reports from a JSON file: an array of ErrorReport
// objects. Used by the CLI and in tests.
type FileSource struct {
	Path string
}

// NewFileSource creates a source reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// FetchErrors loads and decodes the file.
func (f *FileSource) FetchErrors(ctx context.Context) ([]contracts.ErrorReport, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read error file: %w", err)
	}
	var items []contracts.ErrorReport
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse error file: %w", err)
	}
	for i := range items {
		if items[i].Source == "" {
			items[i].Source = "file"
		}
	}
	return items, nil
}

// ItemTraces adapts one work item to the tool executor's trace source.
type ItemTraces struct {
	Item contracts.ErrorReport
}

// RecentTraces returns the item's stack trace as a single trace entry.
func (t *ItemTraces) RecentTraces(limit int) ([]string, error) {
	if len(t.Item.StackTrace) == 0 || limit <= 0 {
		return nil, nil
	}
	return []string{strings.Join(t.Item.StackTrace, "\n")}, nil
}

var _ tools.TraceProvider = (*ItemTraces)(nil)
