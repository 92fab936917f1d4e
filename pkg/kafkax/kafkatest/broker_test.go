package kafkatest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghuser/inventory/pkg/kafkax"
)

func TestReader_RedeliversUncommittedAfterReopen(t *testing.T) {
	b := NewBroker()
	b.Produce("t", []byte("a"))
	b.Produce("t", []byte("b"))

	r := b.Reader()
	ctx := context.Background()

	first, _ := r.FetchMessage(ctx)
	if err := r.CommitMessages(ctx, first); err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, _ := r.FetchMessage(ctx)
	if string(second.Value) != "b" {
		t.Fatalf("unexpected message %q", second.Value)
	}

	_ = r.Reopen()
	again, _ := r.FetchMessage(ctx)
	if again.Offset != second.Offset {
		t.Fatalf("expected redelivery of offset %d, got %d", second.Offset, again.Offset)
	}
}

func TestReader_FetchBlocksUntilCancelled(t *testing.T) {
	r := NewBroker().Reader()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.FetchMessage(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBroker_PublishLifecycle(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	rec := kafkax.Record{Topic: "t", EventID: "e1", Payload: map[string]string{"name": "x"}}

	if err := b.Publish(ctx, rec); !errors.Is(err, kafkax.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	b.FailInitialize(errors.New("refused"))
	if err := b.Initialize(ctx, 1, 0); !errors.Is(err, kafkax.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}

	b.FailInitialize(nil)
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := b.Initialize(cancelled, 1, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := b.Initialize(ctx, 1, 0); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := b.Publish(ctx, rec); err != nil {
		t.Fatalf("publish: %v", err)
	}
	msgs := b.Messages()
	if len(msgs) != 1 || kafkax.Header(msgs[0], kafkax.HeaderEventID) != "e1" {
		t.Fatalf("unexpected log: %+v", msgs)
	}

	b.FailPublish(errors.New("timeout"))
	if err := b.Publish(ctx, rec); !errors.Is(err, kafkax.ErrBrokerSend) {
		t.Fatalf("expected ErrBrokerSend, got %v", err)
	}
}
