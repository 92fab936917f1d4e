// Package postgres implements the item Store Gateway on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ghuser/inventory/pkg/database"
	"github.com/ghuser/inventory/pkg/events"
	itemdomain "github.com/ghuser/inventory/services/item/domain"
	domainevents "github.com/ghuser/inventory/services/item/domain/events"
	"github.com/ghuser/inventory/services/item/domain/models"
	"github.com/ghuser/inventory/services/item/domain/repositories"
)

const (
	selectItems = `SELECT id, name, description FROM inventory.items ORDER BY id`
	selectItem  = `SELECT id, name, description FROM inventory.items WHERE id = $1`
	insertItem  = `INSERT INTO inventory.items (name, description) VALUES ($1, $2) RETURNING id`
	updateItem  = `UPDATE inventory.items
		SET name = COALESCE($2, name), description = COALESCE($3, description)
		WHERE id = $1
		RETURNING id, name, description`
	deleteItem = `DELETE FROM inventory.items WHERE id = $1 RETURNING id, name, description`

	insertProcessed = `INSERT INTO inventory.processed_events (event_id, topic) VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`
)

// ItemRepository implements repositories.ItemRepository against PostgreSQL.
type ItemRepository struct {
	db  *database.Database
	bus *events.EventBus
}

var _ repositories.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository returns an ItemRepository backed by the given pool. When
// bus is non-nil, writes made through InTx can publish item.applied
// notifications in the same transaction.
func NewItemRepository(db *database.Database, bus *events.EventBus) *ItemRepository {
	return &ItemRepository{db: db, bus: bus}
}

// GetAll returns every item ordered by ID.
func (r *ItemRepository) GetAll(ctx context.Context) ([]*models.Item, error) {
	rows, err := r.db.DB().QueryContext(ctx, selectItems)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// GetByID returns ErrItemNotFound if no item has the given id.
func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	item, err := scanItem(r.db.DB().QueryRowContext(ctx, selectItem, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, itemdomain.ErrItemNotFound
		}
		return nil, fmt.Errorf("query item %d: %w", id, err)
	}
	return item, nil
}

// Create inserts an item in its own transaction.
func (r *ItemRepository) Create(ctx context.Context, name models.ItemName, description string) (*models.Item, error) {
	var item *models.Item
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		item, err = r.txFor(tx).Create(ctx, name, description)
		return err
	})
	return item, err
}

// Update applies patch in its own transaction.
func (r *ItemRepository) Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	var item *models.Item
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		item, err = r.txFor(tx).Update(ctx, id, patch)
		return err
	})
	return item, err
}

// Delete removes an item and returns it as it was before deletion.
func (r *ItemRepository) Delete(ctx context.Context, id int64) (*models.Item, error) {
	var item *models.Item
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		item, err = scanItem(tx.QueryRowContext(ctx, deleteItem, id))
		if errors.Is(err, sql.ErrNoRows) {
			return itemdomain.ErrItemNotFound
		}
		if err != nil {
			return fmt.Errorf("delete item %d: %w", id, err)
		}
		return nil
	})
	return item, err
}

// InTx runs fn in one transaction that commits only when fn returns nil.
func (r *ItemRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.ItemTx) error) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, r.txFor(tx))
	})
}

func (r *ItemRepository) txFor(tx *sql.Tx) *itemTx {
	return &itemTx{tx: tx, bus: r.bus}
}

type itemTx struct {
	tx  *sql.Tx
	bus *events.EventBus
}

func (t *itemTx) Create(ctx context.Context, name models.ItemName, description string) (*models.Item, error) {
	item := models.NewItem(name, description)
	if err := t.tx.QueryRowContext(ctx, insertItem, name.String(), description).Scan(&item.ID); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

func (t *itemTx) Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	var name, description sql.NullString
	if patch.Name != nil {
		name = sql.NullString{String: patch.Name.String(), Valid: true}
	}
	if patch.Description != nil {
		description = sql.NullString{String: *patch.Description, Valid: true}
	}

	item, err := scanItem(t.tx.QueryRowContext(ctx, updateItem, id, name, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, itemdomain.ErrItemNotFound
		}
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return item, nil
}

func (t *itemTx) MarkProcessed(ctx context.Context, eventID, topic string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, insertProcessed, eventID, topic)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", eventID, err)
	}
	return n == 1, nil
}

// Applied is a no-op when the repository was built without an event bus.
func (t *itemTx) Applied(ctx context.Context, evt domainevents.ItemAppliedEvent) error {
	if t.bus == nil {
		return nil
	}
	msg, err := events.NewMessage(ctx, evt)
	if err != nil {
		return err
	}
	if evt.EventID != "" {
		msg.Metadata.Set("event_id", evt.EventID)
	}
	p, err := t.bus.NewTxPublisher(t.tx)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	if err := p.Publish(domainevents.TopicItemApplied, msg); err != nil {
		return fmt.Errorf("publish item applied: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.Item, error) {
	var (
		item models.Item
		name string
	)
	if err := row.Scan(&item.ID, &name, &item.Description); err != nil {
		return nil, err
	}
	item.Name = models.ItemName(name)
	return &item, nil
}
