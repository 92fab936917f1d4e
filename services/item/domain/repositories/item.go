package repositories

import (
	"context"

	"github.com/ghuser/inventory/services/item/domain/events"
	"github.com/ghuser/inventory/services/item/domain/models"
)

// ItemRepository is the persistence interface for the Item aggregate.
// The domain layer owns this interface; infrastructure implements it.
type ItemRepository interface {
	// GetAll returns every item ordered by ID.
	GetAll(ctx context.Context) ([]*models.Item, error)

	// GetByID returns domain.ErrItemNotFound when no row matches.
	GetByID(ctx context.Context, id int64) (*models.Item, error)

	Create(ctx context.Context, name models.ItemName, description string) (*models.Item, error)

	// Update applies patch and returns the stored result, or domain.ErrItemNotFound.
	Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error)

	// Delete removes the item and returns it as it was, or domain.ErrItemNotFound.
	Delete(ctx context.Context, id int64) (*models.Item, error)

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx ItemTx) error) error
}

// ItemTx is the set of writes available inside InTx.
type ItemTx interface {
	Create(ctx context.Context, name models.ItemName, description string) (*models.Item, error)
	Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error)

	// MarkProcessed records eventID in the dedup ledger. It returns false when
	// the event was already recorded by an earlier committed transaction.
	MarkProcessed(ctx context.Context, eventID, topic string) (bool, error)

	// Applied publishes an item.applied notification that becomes visible
	// only if the transaction commits.
	Applied(ctx context.Context, evt events.ItemAppliedEvent) error
}
