package analysis

import (
	"strings"

	"nightwatch-agent/src/model"
)

// compactedMarker replaces the body of an old tool result.
const compactedMarker = " ... [compacted]"

// Compact bounds the conversation once it exceeds threshold turns: tool
// results older than the most recent keepRecent are collapsed to their
// first line, preserving what was read without carrying the full payload
// on every subsequent request. Non-tool turns are never touched.
func Compact(convo []model.Turn, threshold, keepRecent int) []model.Turn {
	if threshold <= 0 || len(convo) <= threshold {
		return convo
	}

	// Find the cutoff: the index of the keepRecent-th most recent tool turn.
	cutoff := len(convo)
	remaining := keepRecent
	for i := len(convo) - 1; i >= 0 && remaining > 0; i-- {
		if convo[i].Role == model.RoleTool {
			cutoff = i
			remaining--
		}
	}

	out := make([]model.Turn, len(convo))
	copy(out, convo)
	for i := 0; i < cutoff; i++ {
		if out[i].Role != model.RoleTool {
			continue
		}
		if strings.HasSuffix(out[i].Content, compactedMarker) {
			continue
		}
		firstLine := out[i].Content
		if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
			firstLine = firstLine[:idx]
		}
		out[i].Content = firstLine + compactedMarker
	}
	return out
}
