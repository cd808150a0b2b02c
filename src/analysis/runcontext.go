package analysis

import (
	"fmt"
	"strings"
	"sync"
)

// Caps bounding the run context so its prompt summary stays small no
// matter how many items a run processes.
const (
	maxRunPatterns = 20
	maxRunFiles    = 30
)

// RunContext accumulates codebase knowledge across the work items of one
// pipeline run: patterns discovered, files examined, relationships noted.
// Items analyzed later benefit from what earlier items learned.
type RunContext struct {
	mu            sync.Mutex
	patterns      []string
	files         []string
	fileSet       map[string]bool
	relationships []string
}

// NewRunContext creates an empty accumulator.
func NewRunContext() *RunContext {
	return &RunContext{fileSet: make(map[string]bool)}
}

// Absorb folds one pass's discoveries into the accumulator, respecting
// the caps.
func (rc *RunContext) Absorb(res *PassResult) {
	if res == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, p := range res.Patterns {
		if p == "" || len(rc.patterns) >= maxRunPatterns {
			break
		}
		if !containsString(rc.patterns, p) {
			rc.patterns = append(rc.patterns, p)
		}
	}
	for _, f := range res.FilesExamined {
		if f == "" || len(rc.files) >= maxRunFiles {
			break
		}
		if !rc.fileSet[f] {
			rc.fileSet[f] = true
			rc.files = append(rc.files, f)
		}
	}
}

// NoteRelationship records a cross-item relationship (e.g. two errors
// sharing a root cause).
func (rc *RunContext) NoteRelationship(rel string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rel != "" && len(rc.relationships) < maxRunPatterns {
		rc.relationships = append(rc.relationships, rel)
	}
}

// Summary renders the accumulator for a pass seed; empty when nothing has
// been learned yet.
func (rc *RunContext) Summary() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if len(rc.patterns) == 0 && len(rc.files) == 0 && len(rc.relationships) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context from earlier items in this run:\n")
	if len(rc.patterns) > 0 {
		fmt.Fprintf(&b, "Known codebase patterns: %s\n", strings.Join(rc.patterns, "; "))
	}
	if len(rc.files) > 0 {
		fmt.Fprintf(&b, "Files already examined: %s\n", strings.Join(rc.files, ", "))
	}
	if len(rc.relationships) > 0 {
		fmt.Fprintf(&b, "Noted relationships: %s\n", strings.Join(rc.relationships, "; "))
	}
	return b.String()
}

// Patterns returns a copy of the accumulated patterns.
func (rc *RunContext) Patterns() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.patterns))
	copy(out, rc.patterns)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
