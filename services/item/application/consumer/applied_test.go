package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/inventory/pkg/events"
	"github.com/ghuser/inventory/pkg/logger"
	domainevents "github.com/ghuser/inventory/services/item/domain/events"
)

type recordingEvictor struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (e *recordingEvictor) Evict(_ context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, id)
	return nil
}

type stubBus struct {
	topic   string
	handler func(context.Context, *message.Message) error
	err     error
}

func (b *stubBus) Subscribe(_ context.Context, topic string, h func(context.Context, *message.Message) error) (<-chan error, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.topic, b.handler = topic, h
	ch := make(chan error)
	close(ch)
	return ch, nil
}

func TestAppliedHandler_EvictsItem(t *testing.T) {
	ev := &recordingEvictor{}
	msg, err := events.NewMessage(context.Background(), domainevents.ItemAppliedEvent{ItemID: 7, Kind: domainevents.KindUpdated})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	if err := AppliedHandler(ev, logger.Nop())(context.Background(), msg); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(ev.ids) != 1 || ev.ids[0] != 7 {
		t.Errorf("expected eviction of item 7, got %v", ev.ids)
	}
}

func TestAppliedHandler_ReturnsEvictionFailure(t *testing.T) {
	cause := errors.New("redis down")
	ev := &recordingEvictor{err: cause}
	msg, err := events.NewMessage(context.Background(), domainevents.ItemAppliedEvent{ItemID: 7, Kind: domainevents.KindUpdated})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	if err := AppliedHandler(ev, logger.Nop())(context.Background(), msg); !errors.Is(err, cause) {
		t.Fatalf("expected the eviction error for a retry, got %v", err)
	}
}

func TestAppliedHandler_AcksUndecodable(t *testing.T) {
	ev := &recordingEvictor{}
	msg := message.NewMessage("m1", []byte("{broken"))

	if err := AppliedHandler(ev, logger.Nop())(context.Background(), msg); err != nil {
		t.Fatalf("expected nil for undecodable payload, got %v", err)
	}
	if len(ev.ids) != 0 {
		t.Errorf("nothing should be evicted, got %v", ev.ids)
	}
}

func TestSubscribeApplied(t *testing.T) {
	bus := &stubBus{}
	if err := SubscribeApplied(context.Background(), bus, &recordingEvictor{}, logger.Nop()); err != nil {
		t.Fatalf("SubscribeApplied: %v", err)
	}
	if bus.topic != domainevents.TopicItemApplied || bus.handler == nil {
		t.Errorf("subscribed to %q", bus.topic)
	}

	failing := &stubBus{err: errors.New("db down")}
	if err := SubscribeApplied(context.Background(), failing, &recordingEvictor{}, logger.Nop()); err == nil {
		t.Fatal("expected subscribe error")
	}
}
