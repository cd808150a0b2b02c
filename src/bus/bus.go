package bus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// Handler consumes a delivered message. A returned error (or a panic) is
// logged by the bus and never aborts delivery to the remaining subscribers.
type Handler func(Message) error

type subscription struct {
	id        string
	agentType contracts.AgentType
	filter    *MessageType // nil matches every message type
	handler   Handler
}

// MessageBus is the in-process pub/sub bus. Delivery is synchronous on the
// publishing goroutine, so handlers must not block indefinitely.
type MessageBus struct {
	mu      sync.RWMutex
	subs    []subscription
	history map[string][]Message // session id -> stored deep copies
	mirror  *Mirror              // optional, best-effort
	log     logger.Logger
	closed  bool
}

// NewMessageBus creates an empty bus.
func NewMessageBus(log logger.Logger) *MessageBus {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &MessageBus{
		history: make(map[string][]Message),
		log:     log,
	}
}

// AttachMirror forwards every published message to a Kafka topic for
// external observers. Mirror failures are logged, never propagated.
func (b *MessageBus) AttachMirror(m *Mirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = m
}

// Subscribe registers a handler for messages addressed to agentType (or
// broadcast). A non-nil filter restricts delivery to one message type.
// Returns the subscription id for Unsubscribe. Subscribing to a closed bus
// is rejected: the attempt is logged and the empty id returned.
func (b *MessageBus) Subscribe(agentType contracts.AgentType, filter *MessageType, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.log.Error("[Bus] Subscription from %s dropped: bus is closed", agentType)
		return ""
	}
	id := uuid.NewString()
	b.subs = append(b.subs, subscription{
		id:        id,
		agentType: agentType,
		filter:    filter,
		handler:   h,
	})
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish stores a deep copy of msg in the session history and delivers an
// independent deep copy to every matching subscriber. A subscriber matches
// when the message is broadcast or addressed to its agent type, and its
// filter is nil or equals the message type.
func (b *MessageBus) Publish(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	stored, err := clone(msg)
	if err != nil {
		return fmt.Errorf("message %s is not serializable: %w", msg.Type, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	b.history[msg.SessionID] = append(b.history[msg.SessionID], stored)
	// Snapshot matching subscribers so handlers run without the lock held
	// and may themselves publish.
	var targets []subscription
	for _, sub := range b.subs {
		if msg.To != nil && *msg.To != sub.agentType {
			continue
		}
		if sub.filter != nil && *sub.filter != msg.Type {
			continue
		}
		targets = append(targets, sub)
	}
	mirror := b.mirror
	b.mu.Unlock()

	for _, sub := range targets {
		delivered, err := clone(msg)
		if err != nil {
			b.log.Error("[Bus] Failed to copy message %s for %s: %v", msg.Type, sub.agentType, err)
			continue
		}
		b.deliver(sub, delivered)
	}

	if mirror != nil {
		if err := mirror.Forward(stored); err != nil {
			b.log.Error("[Bus] Mirror forward failed: %v", err)
		}
	}
	return nil
}

// Broadcast publishes msg to every subscriber regardless of addressing.
func (b *MessageBus) Broadcast(msg Message) error {
	msg.To = nil
	return b.Publish(msg)
}

// deliver invokes one handler, containing errors and panics.
func (b *MessageBus) deliver(sub subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("[Bus] Handler for %s panicked on %s: %v", sub.agentType, msg.Type, r)
		}
	}()
	if err := sub.handler(msg); err != nil {
		b.log.Error("[Bus] Handler for %s failed on %s: %v", sub.agentType, msg.Type, err)
	}
}

// Messages returns copies of the session's history in publish order.
func (b *MessageBus) Messages(sessionID string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyMessages(b.history[sessionID])
}

// MessagesByPriority returns copies of the session's history sorted by
// priority (high first), preserving publish order within a priority.
func (b *MessageBus) MessagesByPriority(sessionID string) []Message {
	msgs := b.Messages(sessionID)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Priority < msgs[j].Priority
	})
	return msgs
}

// ClearSession drops the session's history. Called at pipeline completion
// to bound memory.
func (b *MessageBus) ClearSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, sessionID)
}

// Close rejects further publishes and drops all history. Idempotent.
func (b *MessageBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.subs = nil
	b.history = make(map[string][]Message)
}

func copyMessages(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		c, err := clone(m)
		if err != nil {
			// Stored messages already survived one round trip.
			continue
		}
		out = append(out, c)
	}
	return out
}
