package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcache "github.com/ghuser/inventory/pkg/cache"
	"github.com/ghuser/inventory/pkg/logger"
	"github.com/ghuser/inventory/services/item/domain/models"
	"github.com/ghuser/inventory/services/item/domain/repositories"
)

const cacheWriteTimeout = time.Second

// ItemCache is the subset of pkg/cache.ItemCache used by the read path.
type ItemCache interface {
	Get(ctx context.Context, id int64) (*pkgcache.CachedItem, error)
	Generation(ctx context.Context, id int64) (int64, error)
	SetIfGeneration(ctx context.Context, item *pkgcache.CachedItem, gen int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

// ItemService serves reads and the synchronous delete. Reads return the state
// committed by the consumer so far; writes submitted through WriteDispatcher
// may not be visible yet.
type ItemService struct {
	repo  repositories.ItemRepository
	cache ItemCache
	log   logger.Logger
}

// NewItemService returns an ItemService. itemCache may be nil.
func NewItemService(repo repositories.ItemRepository, itemCache ItemCache, log logger.Logger) *ItemService {
	return &ItemService{repo: repo, cache: itemCache, log: log}
}

// List returns every item ordered by ID.
func (s *ItemService) List(ctx context.Context) ([]*models.Item, error) {
	items, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// GetByID retrieves an Item using a read-through cache:
//  1. Check Redis first.
//  2. On a miss (or cache error), read the item's cache generation, then query Postgres.
//  3. Warm the cache asynchronously with the Postgres result, unless the item
//     was evicted after step 2. A row read before an applied write is never
//     cached after that write's eviction.
func (s *ItemService) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err == nil {
			return &models.Item{
				ID:          cached.ID,
				Name:        models.ItemName(cached.Name),
				Description: cached.Description,
			}, nil
		}
		if !errors.Is(err, pkgcache.ErrMiss) {
			s.log.WarnContext(ctx, "item cache read failed", "item_id", id, "error", err)
		}
	}

	warm := false
	var gen int64
	if s.cache != nil {
		var err error
		if gen, err = s.cache.Generation(ctx, id); err != nil {
			s.log.WarnContext(ctx, "item cache generation read failed", "item_id", id, "error", err)
		} else {
			warm = true
		}
	}

	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}

	if warm {
		warmCtx := context.WithoutCancel(ctx)
		go func() {
			ctx, cancel := context.WithTimeout(warmCtx, cacheWriteTimeout)
			defer cancel()
			written, err := s.cache.SetIfGeneration(ctx, &pkgcache.CachedItem{
				ID:          item.ID,
				Name:        item.Name.String(),
				Description: item.Description,
			}, gen)
			if err != nil {
				s.log.WarnContext(ctx, "item cache write failed", "item_id", item.ID, "error", err)
				return
			}
			if !written {
				s.log.DebugContext(ctx, "item cache warm skipped, evicted meanwhile", "item_id", item.ID)
			}
		}()
	}

	return item, nil
}

// Delete removes an item immediately and evicts it from the cache.
// Returns ErrItemNotFound if no matching item exists.
func (s *ItemService) Delete(ctx context.Context, id int64) error {
	if _, err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if err := s.Evict(ctx, id); err != nil {
		// The row is gone; a stale entry expires with the cache TTL.
		s.log.WarnContext(ctx, "item cache eviction failed", "item_id", id, "error", err)
	}
	return nil
}

// Evict drops id from the cache and invalidates reads already in flight.
func (s *ItemService) Evict(ctx context.Context, id int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("evict item %d: %w", id, err)
	}
	return nil
}
