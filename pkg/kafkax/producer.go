// Package kafkax wraps segmentio/kafka-go with the producer and consumer
// lifecycles used by the item write pipeline.
//
// Producer lifecycle: NewProducer -> Initialize -> Publish* -> Close.
// Initialize is single-flight: concurrent callers share one attempt sequence.
package kafkax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ghuser/inventory/pkg/logger"
)

const (
	defaultPublishTimeout = 10 * time.Second
	dialTimeout           = 5 * time.Second
	tracerName            = "github.com/ghuser/inventory/pkg/kafkax"
)

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	PublishTimeout time.Duration
}

// Record is one outgoing message. Payload is encoded as JSON.
type Record struct {
	Topic   string
	Key     []byte
	EventID string
	Payload any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON records to Kafka. It is safe for concurrent use.
type Producer struct {
	cfg ProducerConfig
	log logger.Logger

	mu    sync.RWMutex
	w     messageWriter
	group singleflight.Group

	// connect establishes and verifies a broker connection; newWriter builds
	// the writer once connect succeeded. Both are replaced in tests.
	connect   func(ctx context.Context) error
	newWriter func() messageWriter
}

// NewProducer returns an uninitialized Producer. Call Initialize before Publish.
func NewProducer(cfg ProducerConfig, log logger.Logger) *Producer {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	p := &Producer{cfg: cfg, log: log.With("component", "kafka-producer")}
	p.connect = p.dialBrokers
	p.newWriter = p.buildWriter
	return p
}

// Ready reports whether Initialize has succeeded.
func (p *Producer) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.w != nil
}

// Initialize connects to the brokers, trying up to maxRetries times with
// retryDelay between attempts. It is a no-op once initialized. Callers that
// arrive while an attempt sequence is running wait for it and share its result,
// so the sequence runs under the first caller's ctx. Request paths should pass
// a detached context.
// On exhaustion the producer stays uninitialized and ErrBrokerUnavailable is returned.
func (p *Producer) Initialize(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if p.Ready() {
		return nil
	}
	_, err, _ := p.group.Do("initialize", func() (any, error) {
		if p.Ready() {
			return nil, nil
		}
		return nil, p.initialize(ctx, maxRetries, retryDelay)
	})
	return err
}

func (p *Producer) initialize(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	attempt := 0
	op := func() error {
		attempt++
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return p.connect(dialCtx)
	}
	notify := func(err error, next time.Duration) {
		p.log.WarnContext(ctx, "kafka producer init failed, retrying",
			"attempt", attempt,
			"max_retries", maxRetries,
			"next_delay", next,
			"error", err,
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryDelay), uint64(maxRetries-1)),
		ctx,
	)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		p.log.ErrorContext(ctx, "kafka producer init gave up",
			"attempts", attempt,
			"brokers", p.cfg.Brokers,
			"error", err,
		)
		return fmt.Errorf("%w after %d attempts: %w", ErrBrokerUnavailable, attempt, err)
	}

	p.mu.Lock()
	p.w = p.newWriter()
	p.mu.Unlock()

	p.log.InfoContext(ctx, "kafka producer initialized", "brokers", p.cfg.Brokers, "attempts", attempt)
	return nil
}

// Publish encodes rec.Payload as JSON and writes it synchronously, waiting for
// the broker acknowledgment. The send is bounded by the configured publish
// timeout and is not interrupted by cancellation of ctx.
func (p *Producer) Publish(ctx context.Context, rec Record) error {
	p.mu.RLock()
	w := p.w
	p.mu.RUnlock()
	if w == nil {
		return ErrNotInitialized
	}

	value, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("kafka encode %s payload: %w", rec.Topic, err)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "publish "+rec.Topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", rec.Topic),
			attribute.String("messaging.message.id", rec.EventID),
		),
	)
	defer span.End()

	msg := kafka.Message{Topic: rec.Topic, Key: rec.Key, Value: value}
	if rec.EventID != "" {
		NewHeaderCarrier(&msg).Set(HeaderEventID, rec.EventID)
	}
	InjectTrace(ctx, &msg)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PublishTimeout)
	defer cancel()

	if err := w.WriteMessages(sendCtx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		p.log.ErrorContext(ctx, "kafka publish failed", "topic", rec.Topic, "event_id", rec.EventID, "error", err)
		return &BrokerSendError{Topic: rec.Topic, Err: err}
	}

	p.log.InfoContext(ctx, "kafka message published", "topic", rec.Topic, "event_id", rec.EventID)
	return nil
}

// Ping verifies broker connectivity for health checks.
func (p *Producer) Ping(ctx context.Context) error {
	if !p.Ready() {
		return ErrNotInitialized
	}
	if err := p.connect(ctx); err != nil {
		return fmt.Errorf("kafka ping: %w", err)
	}
	return nil
}

// Close flushes and closes the writer. The producer returns to the uninitialized state.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	if err != nil {
		return fmt.Errorf("kafka producer close: %w", err)
	}
	return nil
}

// dialBrokers succeeds as soon as one broker accepts a connection and returns
// cluster metadata.
func (p *Producer) dialBrokers(ctx context.Context) error {
	if len(p.cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	var errs []error
	for _, addr := range p.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("metadata from %s: %w", addr, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (p *Producer) buildWriter() messageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(p.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		ErrorLogger:            errorLogger(p.log),
		Transport: &kafka.Transport{
			ClientID:    p.cfg.ClientID,
			MetadataTTL: 10 * time.Second,
		},
	}
}
