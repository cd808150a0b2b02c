package mcp

import (
	"testing"

	"nightwatch-agent/src/contracts"
)

func storedReport() *contracts.AnalysisReport {
	return &contracts.AnalysisReport{
		SessionID: "s1",
		RunID:     "run-1",
		Items: []contracts.ItemReport{
			{
				Item: contracts.ErrorReport{ID: "e1", Service: "checkout", Message: "nil pointer"},
				Analysis: &contracts.ErrorAnalysis{
					ItemID: "e1", RootCause: "missing check", Confidence: contracts.ConfidenceHigh,
				},
			},
			{
				Item:    contracts.ErrorReport{ID: "e2", Service: "billing", Message: "sync failed"},
				Skipped: true,
				Note:    "analyzer timeout",
			},
		},
		Patterns: []contracts.PatternGroup{{Label: "class: TimeoutError", ItemIDs: []string{"e1", "e2"}, Occurrences: 5}},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	s.Store(storedReport())

	rep, ok := s.Get("run-1")
	if !ok || rep.SessionID != "s1" {
		t.Fatalf("Get failed: ok=%v rep=%+v", ok, rep)
	}

	item, ok := s.GetItem("run-1", "e1")
	if !ok || item.Analysis == nil || item.Analysis.RootCause != "missing check" {
		t.Fatalf("GetItem failed: ok=%v item=%+v", ok, item)
	}

	if _, ok := s.GetItem("run-1", "absent"); ok {
		t.Error("Unknown item id should miss")
	}
	if _, ok := s.GetItem("absent", "e1"); ok {
		t.Error("Unknown run id should miss")
	}
	if _, ok := s.Get("absent"); ok {
		t.Error("Unknown run id should miss on Get")
	}
}

func TestToManifest(t *testing.T) {
	m := ToManifest(storedReport())

	if m.RunID != "run-1" || m.Analyzed != 1 || m.Patterns != 1 {
		t.Errorf("Unexpected manifest: %+v", m)
	}
	if len(m.Items) != 2 {
		t.Fatalf("Expected both items in the manifest, got %d", len(m.Items))
	}
	if m.Items[0].RootCause != "missing check" || m.Items[0].Confidence != "high" {
		t.Errorf("Analyzed item should carry its summary, got %+v", m.Items[0])
	}
	if !m.Items[1].Skipped || m.Items[1].RootCause != "" {
		t.Errorf("Skipped item should stay empty, got %+v", m.Items[1])
	}
}
