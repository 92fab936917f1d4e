// Package consumer applies item write events from Kafka to the store.
//
// Delivery is at-least-once: an offset is committed only after the store
// transaction for its message has committed. A failed message is not
// committed; the loop backs off and reopens the reader so the group
// redelivers from the last committed offset.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/inventory/pkg/kafkax"
	"github.com/ghuser/inventory/pkg/logger"
	itemdomain "github.com/ghuser/inventory/services/item/domain"
	"github.com/ghuser/inventory/services/item/domain/events"
	"github.com/ghuser/inventory/services/item/domain/models"
	"github.com/ghuser/inventory/services/item/domain/repositories"
)

const (
	instrumentationName = "github.com/ghuser/inventory/services/item/application/consumer"

	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 30 * time.Second
	commitTimeout       = 10 * time.Second
)

var (
	// ErrDecode wraps payloads that are not valid JSON for their topic.
	// Such messages are not committed and will be redelivered.
	ErrDecode = errors.New("decode item event")

	// ErrStore wraps store failures. The transaction was rolled back.
	ErrStore = errors.New("store item event")
)

// Message outcomes, recorded as the "outcome" metric attribute.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeNotFound  = "not_found"
	OutcomeSkipped   = "skipped"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// MessageReader is the consumer-group reader driven by the loop.
// *kafkax.Consumer satisfies it.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Reopen() error
	Close() error
}

// Config names the routed topics and the redelivery backoff.
type Config struct {
	CreatedTopic string
	UpdatedTopic string

	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Consumer) { c.meter = mp.Meter(instrumentationName) }
}

// ErrorReporter receives processing failures, e.g. for crash reporting.
type ErrorReporter func(ctx context.Context, err error, tags map[string]string)

// WithErrorReporter reports the first failure of each redelivery streak to report.
func WithErrorReporter(report ErrorReporter) Option {
	return func(c *Consumer) { c.report = report }
}

// Consumer is the item event consumer loop.
type Consumer struct {
	reader MessageReader
	repo   repositories.ItemRepository
	cfg    Config
	log    logger.Logger
	tracer trace.Tracer
	meter  metric.Meter
	report ErrorReporter

	messages metric.Int64Counter
	duration metric.Float64Histogram
}

// New returns a Consumer reading from reader and writing through repo.
func New(reader MessageReader, repo repositories.ItemRepository, cfg Config, log logger.Logger, opts ...Option) (*Consumer, error) {
	if cfg.CreatedTopic == "" {
		cfg.CreatedTopic = events.DefaultTopicItemCreated
	}
	if cfg.UpdatedTopic == "" {
		cfg.UpdatedTopic = events.DefaultTopicItemUpdated
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = max(defaultRetryMax, cfg.RetryInitial)
	}

	c := &Consumer{
		reader: reader,
		repo:   repo,
		cfg:    cfg,
		log:    log.With("component", "item-consumer"),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	c.messages, err = c.meter.Int64Counter("inventory.consumer.messages",
		metric.WithDescription("Item events handled by the consumer, by topic and outcome."),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("consumer metrics: %w", err)
	}
	c.duration, err = c.meter.Float64Histogram("inventory.consumer.apply.duration",
		metric.WithDescription("Time spent applying one item event to the store."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("consumer metrics: %w", err)
	}
	return c, nil
}

// Topics returns the topics the consumer routes, in subscription order.
func (c *Consumer) Topics() []string {
	return []string{c.cfg.CreatedTopic, c.cfg.UpdatedTopic}
}

// Close releases the reader of a Consumer that will not be run.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Run consumes until ctx is cancelled, then closes the reader and returns nil.
// Per-message failures never end the loop.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("closing kafka reader", "error", err)
		}
	}()

	c.log.InfoContext(ctx, "item consumer started", "topics", c.Topics())
	fetchBackoff := c.newBackoff()
	retryBackoff := c.newBackoff()
	failures := 0

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.log.Info("item consumer stopped")
				return nil
			}
			c.log.ErrorContext(ctx, "kafka fetch failed", "error", err)
			if !sleep(ctx, fetchBackoff.NextBackOff()) {
				return nil
			}
			continue
		}
		fetchBackoff.Reset()

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == 1 && c.report != nil {
				c.report(ctx, err, map[string]string{
					"topic":  msg.Topic,
					"offset": strconv.FormatInt(msg.Offset, 10),
				})
			}
			delay := retryBackoff.NextBackOff()
			c.log.ErrorContext(ctx, "item event processing failed, will be redelivered",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"retry_in", delay,
				"error", err,
			)
			if !sleep(ctx, delay) {
				return nil
			}
			if err := c.reader.Reopen(); err != nil {
				c.log.ErrorContext(ctx, "kafka reader reopen failed", "error", err)
			}
			continue
		}
		retryBackoff.Reset()
		failures = 0

		// The store already committed; finish the offset commit even during shutdown.
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		err = c.reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			c.log.ErrorContext(ctx, "kafka offset commit failed, message may be applied again",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process handles one message in its own span and records its outcome.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctx = kafkax.ExtractTrace(ctx, msg)
	eventID := kafkax.Header(msg, kafkax.HeaderEventID)

	ctx, span := c.tracer.Start(ctx, "process "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.message.id", eventID),
			attribute.Int("messaging.kafka.destination.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
	defer span.End()

	start := time.Now()
	outcome, err := c.handle(ctx, msg, eventID)
	if err != nil {
		outcome = OutcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
	}

	attrs := metric.WithAttributes(
		attribute.String("topic", msg.Topic),
		attribute.String("outcome", outcome),
	)
	c.messages.Add(ctx, 1, attrs)
	c.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("topic", msg.Topic)))
	return err
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message, eventID string) (string, error) {
	switch msg.Topic {
	case c.cfg.CreatedTopic:
		return c.applyCreate(ctx, msg, eventID)
	case c.cfg.UpdatedTopic:
		return c.applyUpdate(ctx, msg, eventID)
	default:
		c.log.WarnContext(ctx, "message from unknown topic ignored", "topic", msg.Topic, "offset", msg.Offset)
		return OutcomeSkipped, nil
	}
}

func (c *Consumer) applyCreate(ctx context.Context, msg kafka.Message, eventID string) (string, error) {
	var evt events.ItemCreatedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrDecode, msg.Topic, err)
	}
	name, err := models.NewItemName(evt.Name)
	if err != nil {
		return c.reject(ctx, msg, eventID, err), nil
	}

	outcome := OutcomeApplied
	var created *models.Item
	err = c.repo.InTx(ctx, func(ctx context.Context, tx repositories.ItemTx) error {
		if fresh, err := markProcessed(ctx, tx, eventID, msg.Topic); err != nil || !fresh {
			outcome = OutcomeDuplicate
			return err
		}
		item, err := tx.Create(ctx, name, evt.Description)
		if err != nil {
			return err
		}
		created = item
		return tx.Applied(ctx, events.ItemAppliedEvent{
			EventID:    eventID,
			ItemID:     created.ID,
			Kind:       events.KindCreated,
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	if outcome == OutcomeDuplicate {
		c.log.InfoContext(ctx, "duplicate item event skipped", "topic", msg.Topic, "event_id", eventID)
		return outcome, nil
	}
	c.log.InfoContext(ctx, "item created", "item_id", created.ID, "event_id", eventID)
	return outcome, nil
}

func (c *Consumer) applyUpdate(ctx context.Context, msg kafka.Message, eventID string) (string, error) {
	var evt events.ItemUpdatedEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return "", fmt.Errorf("%w from %s: %w", ErrDecode, msg.Topic, err)
	}
	if evt.ID <= 0 {
		return c.reject(ctx, msg, eventID, fmt.Errorf("invalid item id %d", evt.ID)), nil
	}

	patch := evt.Patch()
	if patch.IsEmpty() {
		c.log.WarnContext(ctx, "item update without fields ignored", "item_id", evt.ID, "event_id", eventID)
		return OutcomeSkipped, nil
	}
	if patch.Name != nil {
		if _, err := models.NewItemName(patch.Name.String()); err != nil {
			return c.reject(ctx, msg, eventID, err), nil
		}
	}

	outcome := OutcomeApplied
	err := c.repo.InTx(ctx, func(ctx context.Context, tx repositories.ItemTx) error {
		if fresh, err := markProcessed(ctx, tx, eventID, msg.Topic); err != nil || !fresh {
			outcome = OutcomeDuplicate
			return err
		}
		if _, err := tx.Update(ctx, evt.ID, patch); err != nil {
			if errors.Is(err, itemdomain.ErrItemNotFound) {
				outcome = OutcomeNotFound
				return nil
			}
			return err
		}
		return tx.Applied(ctx, events.ItemAppliedEvent{
			EventID:    eventID,
			ItemID:     evt.ID,
			Kind:       events.KindUpdated,
			OccurredAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStore, err)
	}

	switch outcome {
	case OutcomeDuplicate:
		c.log.InfoContext(ctx, "duplicate item event skipped", "topic", msg.Topic, "event_id", eventID)
	case OutcomeNotFound:
		c.log.WarnContext(ctx, "item not found", "item_id", evt.ID, "event_id", eventID)
	default:
		c.log.InfoContext(ctx, "item updated", "item_id", evt.ID, "event_id", eventID)
	}
	return outcome, nil
}

// reject drops a decodable event that can never be applied. Its offset is
// committed so the messages behind it keep flowing. Formatting rules on names
// belong to the write API and are not enforced here.
func (c *Consumer) reject(ctx context.Context, msg kafka.Message, eventID string, cause error) string {
	c.log.WarnContext(ctx, "item event rejected",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"event_id", eventID,
		"error", cause,
	)
	return OutcomeRejected
}

// markProcessed reports fresh=true for messages without an event id; those
// are applied every time they are delivered.
func markProcessed(ctx context.Context, tx repositories.ItemTx, eventID, topic string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	return tx.MarkProcessed(ctx, eventID, topic)
}

func (c *Consumer) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
