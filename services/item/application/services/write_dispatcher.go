package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/inventory/pkg/kafkax"
	"github.com/ghuser/inventory/pkg/logger"
	itemdomain "github.com/ghuser/inventory/services/item/domain"
	"github.com/ghuser/inventory/services/item/domain/events"
	"github.com/ghuser/inventory/services/item/domain/models"
	domainsvcs "github.com/ghuser/inventory/services/item/domain/services"
)

// Publisher is the producer surface the dispatcher depends on.
// *kafkax.Producer satisfies it.
type Publisher interface {
	Ready() bool
	Initialize(ctx context.Context, maxRetries int, retryDelay time.Duration) error
	Publish(ctx context.Context, rec kafkax.Record) error
}

// DispatcherConfig names the topics and the lazy-init schedule used when a
// request finds the producer uninitialized.
type DispatcherConfig struct {
	CreatedTopic       string
	UpdatedTopic       string
	LazyInitMaxRetries int
	LazyInitRetryDelay time.Duration
}

// CreateItemInput is a create intent.
type CreateItemInput struct {
	Name        string
	Description string
}

// UpdateItemInput is an update intent. Nil fields are left unchanged.
type UpdateItemInput struct {
	Name        *string
	Description *string
}

// WriteDispatcher turns write intents into Kafka events. A nil error means the
// broker accepted the event, not that the store applied it.
type WriteDispatcher struct {
	pub     Publisher
	cfg     DispatcherConfig
	log     logger.Logger
	eventID func() string
}

// NewWriteDispatcher returns a WriteDispatcher publishing through pub.
func NewWriteDispatcher(pub Publisher, cfg DispatcherConfig, log logger.Logger) *WriteDispatcher {
	if cfg.CreatedTopic == "" {
		cfg.CreatedTopic = events.DefaultTopicItemCreated
	}
	if cfg.UpdatedTopic == "" {
		cfg.UpdatedTopic = events.DefaultTopicItemUpdated
	}
	if cfg.LazyInitMaxRetries < 1 {
		cfg.LazyInitMaxRetries = 1
	}
	return &WriteDispatcher{pub: pub, cfg: cfg, log: log, eventID: uuid.NewString}
}

// SubmitCreate validates in and publishes an ItemCreatedEvent keyed by its event id.
func (d *WriteDispatcher) SubmitCreate(ctx context.Context, in CreateItemInput) error {
	name, err := models.NewItemName(in.Name)
	if err != nil {
		return fmt.Errorf("%w: %w", itemdomain.ErrInvalidItemName, err)
	}
	if err := domainsvcs.ValidateItemForCreation(models.NewItem(name, in.Description)); err != nil {
		return err
	}

	eventID := d.eventID()
	return d.publish(ctx, kafkax.Record{
		Topic:   d.cfg.CreatedTopic,
		Key:     []byte(eventID),
		EventID: eventID,
		Payload: events.ItemCreatedEvent{Name: name.String(), Description: in.Description},
	})
}

// SubmitUpdate validates in and publishes an ItemUpdatedEvent keyed by the item
// id, so updates of one item are consumed in order. Existence of id is not checked.
func (d *WriteDispatcher) SubmitUpdate(ctx context.Context, id int64, in UpdateItemInput) error {
	evt := events.ItemUpdatedEvent{ID: id, Name: in.Name, Description: in.Description}
	if err := domainsvcs.ValidatePatch(evt.Patch()); err != nil {
		return err
	}

	return d.publish(ctx, kafkax.Record{
		Topic:   d.cfg.UpdatedTopic,
		Key:     []byte(strconv.FormatInt(id, 10)),
		EventID: d.eventID(),
		Payload: evt,
	})
}

func (d *WriteDispatcher) publish(ctx context.Context, rec kafkax.Record) error {
	if !d.pub.Ready() {
		d.log.InfoContext(ctx, "kafka producer not ready, initializing", "topic", rec.Topic)
		// Initialize is shared by concurrent requests; one client going away
		// must not fail it for the others. The lazy schedule bounds the wait.
		if err := d.pub.Initialize(context.WithoutCancel(ctx), d.cfg.LazyInitMaxRetries, d.cfg.LazyInitRetryDelay); err != nil {
			return fmt.Errorf("initialize producer: %w", err)
		}
	}
	if err := d.pub.Publish(ctx, rec); err != nil {
		return fmt.Errorf("publish %s event: %w", rec.Topic, err)
	}
	d.log.InfoContext(ctx, "item event produced", "topic", rec.Topic, "event_id", rec.EventID)
	return nil
}
