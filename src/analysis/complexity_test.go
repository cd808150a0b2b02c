package analysis

import (
	"testing"

	"nightwatch-agent/src/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		item     contracts.ErrorReport
		expected Complexity
	}{
		{
			name: "nil pointer with trace is simple",
			item: contracts.ErrorReport{
				ErrorClass: "NullPointerException",
				Message:    "nil pointer dereference in checkout",
				StackTrace: []string{"at checkout.go:42"},
			},
			expected: ComplexitySimple,
		},
		{
			name: "oom is complex",
			item: contracts.ErrorReport{
				Message:    "container killed: OutOfMemory",
				StackTrace: []string{"at worker.go:10"},
			},
			expected: ComplexityComplex,
		},
		{
			name: "no trace is complex",
			item: contracts.ErrorReport{
				Message: "request failed with status 500",
			},
			expected: ComplexityComplex,
		},
		{
			name: "ordinary error with trace is moderate",
			item: contracts.ErrorReport{
				Message:    "failed to marshal response payload",
				StackTrace: []string{"at handler.go:88"},
			},
			expected: ComplexityModerate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.item); got != tt.expected {
				t.Errorf("Classify() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestIterationCeilingOrdering(t *testing.T) {
	hardCap := 15
	simple := IterationCeiling(ComplexitySimple, hardCap)
	moderate := IterationCeiling(ComplexityModerate, hardCap)
	complex := IterationCeiling(ComplexityComplex, hardCap)

	if simple >= complex {
		t.Errorf("Simple ceiling (%d) must be strictly less than complex (%d)", simple, complex)
	}
	if simple >= moderate || moderate >= complex {
		t.Errorf("Ceilings must be ordered: simple=%d moderate=%d complex=%d", simple, moderate, complex)
	}
	for _, c := range []int{simple, moderate, complex} {
		if c > hardCap {
			t.Errorf("Ceiling %d exceeds hard cap %d", c, hardCap)
		}
	}
}

func TestIterationCeilingRespectsHardCap(t *testing.T) {
	if got := IterationCeiling(ComplexityComplex, 8); got != 8 {
		t.Errorf("Hard cap should bound the complex ceiling, got %d", got)
	}
	if got := IterationCeiling(ComplexitySimple, 8); got != simpleCeiling {
		t.Errorf("Hard cap above the class ceiling should not change it, got %d", got)
	}
}

func TestThinkingBudgetDecay(t *testing.T) {
	base := 4000
	ceiling := 12

	if got := ThinkingBudget(base, 1, ceiling); got != base {
		t.Errorf("Iteration 1 should get the full allowance, got %d", got)
	}
	if got := ThinkingBudget(base, 2, ceiling); got != base {
		t.Errorf("Iteration 2 should get the full allowance, got %d", got)
	}

	prev := base
	for iter := 3; iter <= ceiling; iter++ {
		got := ThinkingBudget(base, iter, ceiling)
		if got > prev {
			t.Errorf("Allowance must not grow: iteration %d got %d after %d", iter, got, prev)
		}
		if got < base/4 {
			t.Errorf("Allowance fell below the 25%% floor at iteration %d: %d", iter, got)
		}
		prev = got
	}

	if got := ThinkingBudget(base, ceiling, ceiling); got != base/4 {
		t.Errorf("Final iteration should sit at the floor, got %d", got)
	}
}
