// Package memory is an in-process implementation of the item Store Gateway.
// Transactions are serialized and applied copy-on-write, so a failed InTx
// leaves no trace. It backs the consumer, service and HTTP tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	itemdomain "github.com/ghuser/inventory/services/item/domain"
	"github.com/ghuser/inventory/services/item/domain/events"
	"github.com/ghuser/inventory/services/item/domain/models"
	"github.com/ghuser/inventory/services/item/domain/repositories"
)

type state struct {
	items     map[int64]models.Item
	processed map[string]string
	nextID    int64
}

func (s state) clone() state {
	return state{
		items:     maps.Clone(s.items),
		processed: maps.Clone(s.processed),
		nextID:    s.nextID,
	}
}

// ItemRepository implements repositories.ItemRepository in memory.
type ItemRepository struct {
	mu       sync.Mutex
	st       state
	applied  []events.ItemAppliedEvent
	failures []error
	commits  int
}

var _ repositories.ItemRepository = (*ItemRepository)(nil)

// NewItemRepository returns an empty repository. IDs start at 1.
func NewItemRepository() *ItemRepository {
	return &ItemRepository{st: state{
		items:     make(map[int64]models.Item),
		processed: make(map[string]string),
		nextID:    1,
	}}
}

// FailNextTx makes the next InTx call run fn and then roll back with err.
// Calls queue up: each one fails one transaction.
func (r *ItemRepository) FailNextTx(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

// AppliedEvents returns the item.applied notifications of committed transactions.
func (r *ItemRepository) AppliedEvents() []events.ItemAppliedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.applied)
}

// Commits returns the number of committed transactions.
func (r *ItemRepository) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *ItemRepository) GetAll(_ context.Context) ([]*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := slices.Sorted(maps.Keys(r.st.items))
	items := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		it := r.st.items[id]
		items = append(items, &it)
	}
	return items, nil
}

func (r *ItemRepository) GetByID(_ context.Context, id int64) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.st.items[id]
	if !ok {
		return nil, itemdomain.ErrItemNotFound
	}
	return &it, nil
}

func (r *ItemRepository) Create(ctx context.Context, name models.ItemName, description string) (*models.Item, error) {
	var item *models.Item
	err := r.InTx(ctx, func(ctx context.Context, tx repositories.ItemTx) error {
		var err error
		item, err = tx.Create(ctx, name, description)
		return err
	})
	return item, err
}

func (r *ItemRepository) Update(ctx context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	var item *models.Item
	err := r.InTx(ctx, func(ctx context.Context, tx repositories.ItemTx) error {
		var err error
		item, err = tx.Update(ctx, id, patch)
		return err
	})
	return item, err
}

func (r *ItemRepository) Delete(_ context.Context, id int64) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.st.items[id]
	if !ok {
		return nil, itemdomain.ErrItemNotFound
	}
	delete(r.st.items, id)
	return &it, nil
}

func (r *ItemRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx repositories.ItemTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &itemTx{st: r.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(r.failures) > 0 {
		err := r.failures[0]
		r.failures = r.failures[1:]
		return fmt.Errorf("commit: %w", err)
	}

	r.st = tx.st
	r.applied = append(r.applied, tx.applied...)
	r.commits++
	return nil
}

type itemTx struct {
	st      state
	applied []events.ItemAppliedEvent
}

func (t *itemTx) Create(_ context.Context, name models.ItemName, description string) (*models.Item, error) {
	item := models.NewItem(name, description)
	item.ID = t.st.nextID
	t.st.nextID++
	t.st.items[item.ID] = *item
	return item, nil
}

func (t *itemTx) Update(_ context.Context, id int64, patch models.ItemPatch) (*models.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return nil, itemdomain.ErrItemNotFound
	}
	patch.Apply(&it)
	t.st.items[id] = it
	return &it, nil
}

func (t *itemTx) MarkProcessed(_ context.Context, eventID, topic string) (bool, error) {
	if _, ok := t.st.processed[eventID]; ok {
		return false, nil
	}
	t.st.processed[eventID] = topic
	return true, nil
}

func (t *itemTx) Applied(_ context.Context, evt events.ItemAppliedEvent) error {
	t.applied = append(t.applied, evt)
	return nil
}
