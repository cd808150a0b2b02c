package knowledge

import (
	"context"
	"testing"
	"time"

	"nightwatch-agent/src/contracts"
)

func TestMemoryStoreSearchRankingAndCap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	priors := []contracts.PriorResult{
		{Fingerprint: "fp1", RootCause: "old low", Confidence: contracts.ConfidenceLow, AnalyzedAt: base},
		{Fingerprint: "fp1", RootCause: "high", Confidence: contracts.ConfidenceHigh, AnalyzedAt: base.Add(time.Minute)},
		{Fingerprint: "fp1", RootCause: "medium", Confidence: contracts.ConfidenceMedium, AnalyzedAt: base.Add(2 * time.Minute)},
		{Fingerprint: "fp1", RootCause: "new low", Confidence: contracts.ConfidenceLow, AnalyzedAt: base.Add(3 * time.Minute)},
		{Fingerprint: "fp2", RootCause: "other error", Confidence: contracts.ConfidenceHigh, AnalyzedAt: base},
	}
	for _, pr := range priors {
		if err := s.Write(ctx, pr); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	got, err := s.Search(ctx, contracts.ErrorReport{Fingerprint: "fp1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != MaxSearchResults {
		t.Fatalf("Expected %d results, got %d", MaxSearchResults, len(got))
	}
	if got[0].RootCause != "high" {
		t.Errorf("Highest confidence should rank first, got %q", got[0].RootCause)
	}
	if got[1].RootCause != "medium" {
		t.Errorf("Medium confidence should rank second, got %q", got[1].RootCause)
	}
	if got[2].RootCause != "new low" {
		t.Errorf("Recency should break confidence ties, got %q", got[2].RootCause)
	}
	for _, pr := range got {
		if pr.Fingerprint != "fp1" {
			t.Errorf("Search leaked a result for %q", pr.Fingerprint)
		}
	}
}

func TestMemoryStoreSearchUnknownFingerprint(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Search(context.Background(), contracts.ErrorReport{Fingerprint: "unseen"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no results, got %d", len(got))
	}
}
