package model

import (
	"context"
	"fmt"
	"testing"
	"time"

	"nightwatch-agent/src/logger"
)

// flakyCaller fails a fixed number of times before succeeding.
type flakyCaller struct {
	failures int
	calls    int
}

func (f *flakyCaller) Call(ctx context.Context, req Request) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("transient provider error")
	}
	return &Response{Usage: Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Multiplier:      1.5,
	}
}

func TestResilientCallerRetriesTransientFailures(t *testing.T) {
	inner := &flakyCaller{failures: 2}
	rc := NewResilientCaller(inner, fastRetry(), logger.NewSilentLogger())

	resp, err := rc.Call(context.Background(), Request{Model: "test"})
	if err != nil {
		t.Fatalf("Expected eventual success, got %v", err)
	}
	if resp.Usage.Total() != 15 {
		t.Errorf("Expected usage 15, got %d", resp.Usage.Total())
	}
	if inner.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", inner.calls)
	}
}

func TestResilientCallerStopsOnCancel(t *testing.T) {
	inner := &flakyCaller{failures: 1000}
	rc := NewResilientCaller(inner, fastRetry(), logger.NewSilentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := rc.Call(ctx, Request{Model: "test"}); err == nil {
		t.Fatal("Expected an error for a cancelled context")
	}
	if inner.calls > 1 {
		t.Errorf("Cancelled context should not be retried, got %d calls", inner.calls)
	}
}
