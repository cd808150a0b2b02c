package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// MirrorTopic is the Kafka/Redpanda topic bus traffic is mirrored to.
const MirrorTopic = "nightwatch.bus.messages"

// mirrorTimeout bounds how long one forward may block the publisher.
const mirrorTimeout = 5 * time.Second

// Mirror forwards published bus messages to a Kafka-compatible broker so
// external observers can tail a run. The bus treats it as best-effort:
// forward failures are logged by the caller and never fail a publish.
type Mirror struct {
	client *kgo.Client
	mu     sync.Mutex
	closed bool
}

// NewMirror connects a producer-only client to the given broker addresses.
func NewMirror(brokers []string) (*Mirror, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	return &Mirror{client: client}, nil
}

// Forward publishes one message to the mirror topic, keyed by session id so
// a session's traffic stays ordered within a partition.
func (m *Mirror) Forward(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("mirror is closed")
	}
	m.mu.Unlock()

	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	record := &kgo.Record{
		Topic: MirrorTopic,
		Key:   []byte(msg.SessionID),
		Value: value,
	}
	results := m.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Close shuts down the producer. Idempotent.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.client.Close()
}
