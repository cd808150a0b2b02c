package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// defaultMaxResultBytes bounds a single tool result.
	defaultMaxResultBytes = 16 * 1024
	// maxSearchMatches bounds search_code output lines.
	maxSearchMatches = 50
	// maxSearchFileBytes skips files larger than this during search.
	maxSearchFileBytes = 1 << 20
)

// TraceProvider supplies recent stack traces for get_traces. The ingest
// layer implements it for the item under analysis.
type TraceProvider interface {
	RecentTraces(limit int) ([]string, error)
}

// Local executes tools against a checked-out repository on disk.
type Local struct {
	// Repository root all paths are resolved under.
	Root string
	// Trace source for get_traces, may be nil.
	Traces TraceProvider
	// Per-result size cap; defaults to defaultMaxResultBytes.
	MaxResultBytes int
}

// NewLocal creates a local executor rooted at root.
func NewLocal(root string, traces TraceProvider) *Local {
	return &Local{Root: root, Traces: traces, MaxResultBytes: defaultMaxResultBytes}
}

func (l *Local) cap() int {
	if l.MaxResultBytes <= 0 {
		return defaultMaxResultBytes
	}
	return l.MaxResultBytes
}

// Execute dispatches one tool call. Unknown tools and bad arguments return
// errors; the loop reinserts them as failed tool turns.
func (l *Local) Execute(ctx context.Context, name string, args map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch name {
	case ToolReadFile:
		return l.readFile(args["path"])
	case ToolSearchCode:
		return l.searchCode(ctx, args["query"])
	case ToolListDirectory:
		return l.listDirectory(args["path"])
	case ToolGetTraces:
		return l.getTraces(args["limit"])
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

// resolve joins path under the root and rejects escapes.
func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.Root, filepath.Clean("/"+path))
	if !strings.HasPrefix(full, filepath.Clean(l.Root)) {
		return "", fmt.Errorf("path %q escapes repository root", path)
	}
	return full, nil
}

func (l *Local) readFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("read_file requires a path")
	}
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Truncate(string(data), l.cap()), nil
}

func (l *Local) searchCode(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("search_code requires a query")
	}

	var matches []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxSearchFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(l.Root, path)
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
				if len(matches) >= maxSearchMatches {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("no matches for %q", query), nil
	}
	return Truncate(strings.Join(matches, "\n"), l.cap()), nil
}

func (l *Local) listDirectory(path string) (string, error) {
	if path == "" {
		path = "."
	}
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", path)
		}
		return "", fmt.Errorf("failed to list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return Truncate(strings.Join(names, "\n"), l.cap()), nil
}

func (l *Local) getTraces(limitArg string) (string, error) {
	if l.Traces == nil {
		return "", fmt.Errorf("no trace source configured")
	}
	limit := 3
	if limitArg != "" {
		n, err := strconv.Atoi(limitArg)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("invalid limit %q", limitArg)
		}
		limit = n
	}
	traces, err := l.Traces.RecentTraces(limit)
	if err != nil {
		return "", fmt.Errorf("failed to fetch traces: %w", err)
	}
	if len(traces) == 0 {
		return "no traces recorded", nil
	}
	return Truncate(strings.Join(traces, "\n---\n"), l.cap()), nil
}
