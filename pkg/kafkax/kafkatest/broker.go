// Package kafkatest provides an in-memory broker for tests of code built on
// pkg/kafkax. Broker stands in for *kafkax.Producer and Reader for
// *kafkax.Consumer, with consumer-group commit and redelivery semantics.
//
// All topics share one partition and one offset sequence.
package kafkatest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghuser/inventory/pkg/kafkax"
)

const pollInterval = time.Millisecond

// Broker is an in-memory topic log with a single consumer group.
type Broker struct {
	mu        sync.Mutex
	log       []kafka.Message
	committed int64
	ready     bool
	initErr   error
	sendErr   error
	initCalls int
}

// NewBroker returns an empty, uninitialized broker.
func NewBroker() *Broker {
	return &Broker{}
}

// FailInitialize makes Initialize fail with err wrapped in ErrBrokerUnavailable.
// A nil err restores normal behaviour.
func (b *Broker) FailInitialize(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initErr = err
}

// FailPublish makes Publish fail with a *kafkax.BrokerSendError wrapping err.
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

func (b *Broker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Initialize fails like *kafkax.Producer when ctx is already done.
func (b *Broker) Initialize(ctx context.Context, _ int, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initCalls++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", kafkax.ErrBrokerUnavailable, err)
	}
	if b.initErr != nil {
		return fmt.Errorf("%w: %w", kafkax.ErrBrokerUnavailable, b.initErr)
	}
	b.ready = true
	return nil
}

// InitializeCalls returns how many times Initialize was called.
func (b *Broker) InitializeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initCalls
}

func (b *Broker) Publish(ctx context.Context, rec kafkax.Record) error {
	b.mu.Lock()
	ready, sendErr := b.ready, b.sendErr
	b.mu.Unlock()

	if !ready {
		return kafkax.ErrNotInitialized
	}
	if sendErr != nil {
		return &kafkax.BrokerSendError{Topic: rec.Topic, Err: sendErr}
	}

	value, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("kafka encode %s payload: %w", rec.Topic, err)
	}
	msg := kafka.Message{Topic: rec.Topic, Key: rec.Key, Value: value}
	if rec.EventID != "" {
		kafkax.NewHeaderCarrier(&msg).Set(kafkax.HeaderEventID, rec.EventID)
	}
	kafkax.InjectTrace(ctx, &msg)

	b.append(msg)
	return nil
}

// Produce appends a raw message, bypassing encoding.
func (b *Broker) Produce(topic string, value []byte, headers ...kafka.Header) {
	b.append(kafka.Message{Topic: topic, Value: value, Headers: headers})
}

func (b *Broker) append(msg kafka.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg.Offset = int64(len(b.log))
	msg.Time = time.Now()
	b.log = append(b.log, msg)
}

// Messages returns a copy of the log.
func (b *Broker) Messages() []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]kafka.Message(nil), b.log...)
}

// Committed returns the group's committed offset: the next offset to deliver.
func (b *Broker) Committed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed
}

// Drained reports whether every produced message has been committed.
func (b *Broker) Drained() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed == int64(len(b.log))
}

// Reader returns a group reader positioned at the committed offset.
func (b *Broker) Reader() *Reader {
	return &Reader{b: b, pos: b.Committed()}
}

// Reader is an in-memory consumer-group reader over a Broker.
type Reader struct {
	b *Broker

	mu      sync.Mutex
	pos     int64
	reopens int
	closed  bool
}

// FetchMessage blocks until a message past the read position exists.
// It returns io.EOF once the reader is closed.
func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		closed, pos := r.closed, r.pos
		r.mu.Unlock()
		if closed {
			return kafka.Message{}, io.EOF
		}

		r.b.mu.Lock()
		if pos < int64(len(r.b.log)) {
			msg := r.b.log[pos]
			r.b.mu.Unlock()

			r.mu.Lock()
			r.pos = pos + 1
			r.mu.Unlock()
			return msg, nil
		}
		r.b.mu.Unlock()

		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// CommitMessages advances the group offset past msgs. It never moves it back.
func (r *Reader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	for _, m := range msgs {
		if next := m.Offset + 1; next > r.b.committed {
			r.b.committed = next
		}
	}
	return nil
}

// Reopen rewinds the reader to the committed offset.
func (r *Reader) Reopen() error {
	committed := r.b.Committed()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = committed
	r.closed = false
	r.reopens++
	return nil
}

// Reopens returns how many times Reopen was called.
func (r *Reader) Reopens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reopens
}

// Closed reports whether Close was called.
func (r *Reader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
