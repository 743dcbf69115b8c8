package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&InboundMessage{
		Channel: "whatsapp",
		Phone:   "60123456789",
		Content: "hello",
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := b.ConsumeInbound(ctx)
	if err != nil {
		t.Fatalf("ConsumeInbound: %v", err)
	}
	if msg.Phone != "60123456789" || msg.Content != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set on publish")
	}
}

func TestConsumeInboundCancelled(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.ConsumeInbound(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDispatchOutbound(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	var got []string
	b.Subscribe("whatsapp", func(msg *OutboundMessage) {
		mu.Lock()
		got = append(got, msg.Content)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(&OutboundMessage{Channel: "whatsapp", Phone: "601", Content: "first"})
	b.PublishOutbound(&OutboundMessage{Channel: "whatsapp", Phone: "601", Content: "second"})

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 dispatched messages, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("dispatch order wrong: %v", got)
	}
}

func TestDispatchIgnoresOtherChannels(t *testing.T) {
	b := NewMessageBus()

	var mu sync.Mutex
	hits := 0
	b.Subscribe("slack", func(*OutboundMessage) {
		mu.Lock()
		hits++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.DispatchOutbound(ctx)

	b.PublishOutbound(&OutboundMessage{Channel: "whatsapp", Content: "x"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if hits != 0 {
		t.Errorf("slack subscriber should not receive whatsapp messages")
	}
}
