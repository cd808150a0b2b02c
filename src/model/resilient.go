package model

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"nightwatch-agent/src/logger"
)

// RetryConfig configures exponential backoff around model calls.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  90 * time.Second,
		Multiplier:      2.0,
	}
}

// ResilientCaller wraps a Caller with a circuit breaker and bounded
// exponential-backoff retry. The analysis loop talks to the model only
// through this wrapper, so a flapping provider trips the breaker instead
// of burning the token budget on doomed calls.
type ResilientCaller struct {
	inner    Caller
	breaker  *gobreaker.CircuitBreaker
	retryCfg RetryConfig
	log      logger.Logger
}

// NewResilientCaller wraps inner.
func NewResilientCaller(inner Caller, retryCfg RetryConfig, log logger.Logger) *ResilientCaller {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "model",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("[Model] Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the caller's decision, not a provider failure.
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})
	return &ResilientCaller{inner: inner, breaker: cb, retryCfg: retryCfg, log: log}
}

// Call executes one model call through the breaker, retrying transient
// failures with exponential backoff until MaxElapsedTime.
func (r *ResilientCaller) Call(ctx context.Context, req Request) (*Response, error) {
	var resp *Response

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		result, err := r.breaker.Execute(func() (interface{}, error) {
			return r.inner.Call(ctx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			r.log.Debug("[Model] Call failed, will retry: %v", err)
			return err
		}
		resp = result.(*Response)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.retryCfg.InitialInterval
	bo.MaxInterval = r.retryCfg.MaxInterval
	bo.MaxElapsedTime = r.retryCfg.MaxElapsedTime
	bo.Multiplier = r.retryCfg.Multiplier

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
