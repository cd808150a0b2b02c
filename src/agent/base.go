package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// Agent is the uniform lifecycle every pipeline agent implements.
// Initialize and Cleanup bracket a pipeline run; Execute is called once per
// phase (or once per work item for per-item phases).
type Agent interface {
	Type() contracts.AgentType
	Initialize(b *bus.MessageBus) error
	Execute(ctx context.Context, actx *Context) *Result
	Cleanup()
}

// Base carries the lifecycle state shared by all concrete agents. Embed it
// and call ExecuteWithTimeout from Execute.
type Base struct {
	agentType contracts.AgentType
	config    Config
	log       logger.Logger

	mu     sync.Mutex
	status contracts.AgentStatus
	bus    *bus.MessageBus
	subIDs []string
}

// NewBase constructs the embedded base for a concrete agent.
func NewBase(t contracts.AgentType, cfg Config, log logger.Logger) Base {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return Base{
		agentType: t,
		config:    cfg,
		log:       log,
		status:    contracts.StatusIdle,
	}
}

func (b *Base) Type() contracts.AgentType { return b.agentType }

func (b *Base) Config() Config { return b.config }

func (b *Base) Log() logger.Logger { return b.log }

// Status returns the agent's current lifecycle state.
func (b *Base) Status() contracts.AgentStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(s contracts.AgentStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Initialize resets the agent to idle and stores the bus reference.
func (b *Base) Initialize(mb *bus.MessageBus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = mb
	b.subIDs = nil
	b.status = contracts.StatusIdle
	return nil
}

// Bus returns the bus stored at Initialize, or nil before initialization.
func (b *Base) Bus() *bus.MessageBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bus
}

// TrackSubscription records a bus subscription so Cleanup can release it.
func (b *Base) TrackSubscription(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subIDs = append(b.subIDs, id)
}

// Cleanup unsubscribes from the bus and resets the agent to idle.
func (b *Base) Cleanup() {
	b.mu.Lock()
	mb := b.bus
	ids := b.subIDs
	b.subIDs = nil
	b.status = contracts.StatusIdle
	b.mu.Unlock()

	if mb == nil {
		return
	}
	for _, id := range ids {
		mb.Unsubscribe(id)
	}
}

// Publish sends a message on the stored bus, stamping the sender.
func (b *Base) Publish(msg bus.Message) error {
	mb := b.Bus()
	if mb == nil {
		return fmt.Errorf("agent %s has no bus", b.agentType)
	}
	msg.From = bus.Addr(b.agentType)
	return mb.Publish(msg)
}

// ExecuteWithTimeout runs op under the agent's configured deadline and
// converts every outcome into a well-formed Result. No error or panic
// escapes to the caller:
//   - success: status completed, elapsed time stamped on the result
//   - deadline exceeded: status failed, recoverable TIMEOUT result
//   - error or panic from op: status failed, recoverable EXECUTION_ERROR
func (b *Base) ExecuteWithTimeout(ctx context.Context, actx *Context, op func(context.Context) (*Result, error)) *Result {
	b.setStatus(contracts.StatusRunning)
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, b.config.Timeout())
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := op(opCtx)
		done <- outcome{res: res, err: err}
	}()

	var res *Result
	select {
	case out := <-done:
		switch {
		case out.err != nil:
			res = NewFailure(KindExecutionError, out.err.Error(), true)
		case out.res == nil:
			res = NewFailure(KindExecutionError, "agent returned no result", true)
		default:
			res = out.res
		}
	case <-opCtx.Done():
		// Stop waiting; the operation itself is abandoned unless it
		// honors the cancelled context.
		res = NewFailure(KindTimeout,
			fmt.Sprintf("%s timed out after %s", b.agentType, b.config.Timeout()), true)
	}

	res.Duration = time.Since(start)
	if res.Success {
		b.setStatus(contracts.StatusCompleted)
	} else {
		b.setStatus(contracts.StatusFailed)
	}
	return res
}
