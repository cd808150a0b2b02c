// Package report delivers finished analysis reports to external sinks:
// an issue tracker and a chat channel. Sinks are boundaries; production
// wiring decides which concrete transport sits behind them.
package report

import (
	"context"
	"fmt"
	"sync"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// IssueSink files one issue per analyzed item.
type IssueSink interface {
	FileIssue(ctx context.Context, title, body string) error
}

// ChatSink posts the run summary to a chat channel.
type ChatSink interface {
	PostSummary(ctx context.Context, text string) error
}

// Dispatcher fans a report out to the configured sinks, deduplicating by
// report fingerprint so a fallback re-run of the same batch does not file
// the same issues twice. Either sink may be nil.
type Dispatcher struct {
	issues IssueSink
	chat   ChatSink
	log    logger.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(issues IssueSink, chat ChatSink, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Dispatcher{
		issues: issues,
		chat:   chat,
		log:    log,
		seen:   make(map[string]bool),
	}
}

// Dispatch delivers the report. A chat failure is logged and ignored; an
// issue failure aborts and leaves the fingerprint unmarked so a retry can
// file the remaining issues.
func (d *Dispatcher) Dispatch(ctx context.Context, r *contracts.AnalysisReport) error {
	fp := r.Fingerprint()

	d.mu.Lock()
	already := d.seen[fp]
	d.mu.Unlock()

	if already {
		d.log.Info("[Report] Batch %s already dispatched, skipping issues", fp[:12])
	} else if d.issues != nil {
		for _, item := range r.Items {
			if item.Analysis == nil || item.Skipped {
				continue
			}
			title, body := FormatIssue(item)
			if err := d.issues.FileIssue(ctx, title, body); err != nil {
				return fmt.Errorf("filing issue for %s: %w", item.Item.ID, err)
			}
		}
		d.mu.Lock()
		d.seen[fp] = true
		d.mu.Unlock()
	}

	if d.chat != nil {
		if err := d.chat.PostSummary(ctx, FormatSummary(r)); err != nil {
			d.log.Error("[Report] Chat post failed: %v", err)
		}
	}
	return nil
}

// LogIssueSink writes issues to the logger. The default when no tracker is
// configured.
type LogIssueSink struct {
	Log logger.Logger
}

func (s *LogIssueSink) FileIssue(ctx context.Context, title, body string) error {
	s.Log.Info("[Issue] %s\n%s", title, body)
	return nil
}

// LogChatSink writes summaries to the logger.
type LogChatSink struct {
	Log logger.Logger
}

func (s *LogChatSink) PostSummary(ctx context.Context, text string) error {
	s.Log.Info("[Chat] %s", text)
	return nil
}
