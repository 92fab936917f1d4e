// Package events defines the payloads exchanged on the item topics.
package events

import (
	"time"

	"github.com/ghuser/inventory/services/item/domain/models"
)

// Default Kafka topics for item write intents. Both are overridable through config.
const (
	DefaultTopicItemCreated = "item_created"
	DefaultTopicItemUpdated = "item_updated"
)

// TopicItemApplied is the Watermill topic published in the same transaction
// that applies a create or update event to the store.
const TopicItemApplied = "inventory.item_applied"

// ItemCreatedEvent is the payload of a create intent. It carries no id; the
// store assigns one when the event is applied.
type ItemCreatedEvent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ItemUpdatedEvent is the payload of an update intent. Absent fields are left
// unchanged on the stored item.
type ItemUpdatedEvent struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Patch converts the event into a domain patch. Name is not validated here.
func (e ItemUpdatedEvent) Patch() models.ItemPatch {
	var p models.ItemPatch
	if e.Name != nil {
		n := models.ItemName(*e.Name)
		p.Name = &n
	}
	if e.Description != nil {
		d := *e.Description
		p.Description = &d
	}
	return p
}

// Applied kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
)

// ItemAppliedEvent is published after a write event was committed to the store.
type ItemAppliedEvent struct {
	EventID    string    `json:"event_id,omitempty"`
	ItemID     int64     `json:"item_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}
