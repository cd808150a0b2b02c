package bus

import (
	"fmt"
	"testing"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

func TestPublishDeliversOnlyToAddressedAgent(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	var researcherGot, reporterGot int
	b.Subscribe(contracts.AgentResearcher, nil, func(m Message) error {
		researcherGot++
		return nil
	})
	b.Subscribe(contracts.AgentReporter, nil, func(m Message) error {
		reporterGot++
		return nil
	})

	err := b.Publish(Message{
		To:        Addr(contracts.AgentResearcher),
		Type:      MsgErrorsReady,
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if researcherGot != 1 {
		t.Errorf("Researcher subscriber should receive 1 message, got %d", researcherGot)
	}
	if reporterGot != 0 {
		t.Errorf("Reporter subscriber should receive 0 messages, got %d", reporterGot)
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	var got []contracts.AgentType
	for _, at := range contracts.AgentTypes() {
		agentType := at
		b.Subscribe(agentType, nil, func(m Message) error {
			got = append(got, agentType)
			return nil
		})
	}

	if err := b.Broadcast(Message{Type: MsgReportPublished, SessionID: "s1"}); err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if len(got) != len(contracts.AgentTypes()) {
		t.Errorf("Expected %d deliveries, got %d", len(contracts.AgentTypes()), len(got))
	}
}

func TestTypeFilterRestrictsDelivery(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	filter := MsgPatternsFound
	var matched, unmatched int
	b.Subscribe(contracts.AgentReporter, &filter, func(m Message) error {
		matched++
		return nil
	})
	b.Subscribe(contracts.AgentReporter, nil, func(m Message) error {
		unmatched++
		return nil
	})

	_ = b.Publish(Message{To: Addr(contracts.AgentReporter), Type: MsgErrorsReady, SessionID: "s1"})
	_ = b.Publish(Message{To: Addr(contracts.AgentReporter), Type: MsgPatternsFound, SessionID: "s1"})

	if matched != 1 {
		t.Errorf("Filtered subscriber should see exactly the matching type, got %d", matched)
	}
	if unmatched != 2 {
		t.Errorf("Unfiltered subscriber should see both messages, got %d", unmatched)
	}
}

func TestHandlerMutationDoesNotCorruptHistory(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	b.Subscribe(contracts.AgentAnalyzer, nil, func(m Message) error {
		if payload, ok := m.Payload.(map[string]interface{}); ok {
			payload["count"] = float64(999)
		}
		return nil
	})

	err := b.Publish(Message{
		To:        Addr(contracts.AgentAnalyzer),
		Type:      MsgErrorsReady,
		Payload:   map[string]interface{}{"count": 3},
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := b.Messages("s1")
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 stored message, got %d", len(msgs))
	}
	payload, ok := msgs[0].Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected payload type %T", msgs[0].Payload)
	}
	if payload["count"] != float64(3) {
		t.Errorf("Stored history was mutated by handler: count = %v", payload["count"])
	}
}

func TestHandlerErrorAndPanicDoNotAbortDelivery(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	var lastGot bool
	b.Subscribe(contracts.AgentValidator, nil, func(m Message) error {
		return fmt.Errorf("boom")
	})
	b.Subscribe(contracts.AgentValidator, nil, func(m Message) error {
		panic("handler panic")
	})
	b.Subscribe(contracts.AgentValidator, nil, func(m Message) error {
		lastGot = true
		return nil
	})

	if err := b.Publish(Message{To: Addr(contracts.AgentValidator), Type: MsgAnalysisComplete, SessionID: "s1"}); err != nil {
		t.Fatalf("Publish should not propagate handler failures: %v", err)
	}
	if !lastGot {
		t.Error("Delivery aborted before reaching the last subscriber")
	}
}

func TestMessagesByPriority(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	_ = b.Publish(Message{Type: MsgReportPublished, Priority: PriorityLow, SessionID: "s1"})
	_ = b.Publish(Message{Type: MsgErrorsReady, Priority: PriorityHigh, SessionID: "s1"})
	_ = b.Publish(Message{Type: MsgContextReady, Priority: PriorityMedium, SessionID: "s1"})

	msgs := b.MessagesByPriority("s1")
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}
	want := []MessageType{MsgErrorsReady, MsgContextReady, MsgReportPublished}
	for i, wt := range want {
		if msgs[i].Type != wt {
			t.Errorf("Position %d: expected %s, got %s", i, wt, msgs[i].Type)
		}
	}
}

func TestSessionHistoryIsolationAndClear(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	_ = b.Publish(Message{Type: MsgErrorsReady, SessionID: "s1"})
	_ = b.Publish(Message{Type: MsgErrorsReady, SessionID: "s2"})

	if got := len(b.Messages("s1")); got != 1 {
		t.Errorf("Session s1 should have 1 message, got %d", got)
	}

	b.ClearSession("s1")
	if got := len(b.Messages("s1")); got != 0 {
		t.Errorf("Cleared session should be empty, got %d messages", got)
	}
	if got := len(b.Messages("s2")); got != 1 {
		t.Errorf("Clearing s1 should not touch s2, got %d messages", got)
	}
}

func TestSubscribeAfterCloseIsRejected(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())
	b.Close()

	id := b.Subscribe(contracts.AgentAnalyzer, nil, func(m Message) error {
		t.Error("Handler on a closed bus must never fire")
		return nil
	})
	if id != "" {
		t.Errorf("Subscribing to a closed bus should return the empty id, got %q", id)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMessageBus(logger.NewSilentLogger())

	var got int
	id := b.Subscribe(contracts.AgentAnalyzer, nil, func(m Message) error {
		got++
		return nil
	})

	_ = b.Publish(Message{To: Addr(contracts.AgentAnalyzer), Type: MsgErrorsReady, SessionID: "s1"})
	b.Unsubscribe(id)
	_ = b.Publish(Message{To: Addr(contracts.AgentAnalyzer), Type: MsgErrorsReady, SessionID: "s1"})

	if got != 1 {
		t.Errorf("Expected 1 delivery before unsubscribe, got %d", got)
	}
}
