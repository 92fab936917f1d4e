package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/ghuser/inventory/pkg/logger"
	"github.com/ghuser/inventory/services/item/domain/events"
)

// Evictor drops a cached item. *services.ItemService satisfies it.
type Evictor interface {
	Evict(ctx context.Context, id int64) error
}

// Subscriber is the event bus surface used for item.applied notifications.
// *events.EventBus satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler func(context.Context, *message.Message) error) (<-chan error, error)
}

// SubscribeApplied evicts the cache entry of every item the consumer changes,
// so reads stop serving the pre-change value once the change is committed.
// Handler errors are logged until ctx is cancelled.
func SubscribeApplied(ctx context.Context, bus Subscriber, ev Evictor, log logger.Logger) error {
	errCh, err := bus.Subscribe(ctx, events.TopicItemApplied, AppliedHandler(ev, log))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicItemApplied, err)
	}
	go func() {
		for err := range errCh {
			log.ErrorContext(ctx, "item.applied handler failed", "error", err)
		}
	}()
	return nil
}

// AppliedHandler returns the watermill handler behind SubscribeApplied.
// Undecodable notifications are acked and logged; redelivering them cannot help.
// A failed eviction is returned so the event bus retries the notification.
func AppliedHandler(ev Evictor, log logger.Logger) func(context.Context, *message.Message) error {
	return func(ctx context.Context, msg *message.Message) error {
		var evt events.ItemAppliedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.WarnContext(ctx, "undecodable item.applied notification dropped", "message_uuid", msg.UUID, "error", err)
			return nil
		}
		if err := ev.Evict(ctx, evt.ItemID); err != nil {
			return err
		}
		log.DebugContext(ctx, "item cache evicted", "item_id", evt.ItemID, "kind", evt.Kind, "event_id", evt.EventID)
		return nil
	}
}
