package services

import (
	"github.com/ghuser/inventory/pkg/app"
	pkgcache "github.com/ghuser/inventory/pkg/cache"
	"github.com/ghuser/inventory/services/item/infrastructure/persistence/postgres"
)

// Services is the application-layer service container for this bounded context.
type Services struct {
	Item   *ItemService
	Writes *WriteDispatcher
}

// New wires the item services with infrastructure from the Application container.
func New(a *app.Application) *Services {
	repo := postgres.NewItemRepository(a.Db, a.EventBus)

	var itemCache ItemCache
	if a.Redis != nil {
		itemCache = pkgcache.NewItemCache(a.Redis, a.Config.ItemCacheTTL)
	}

	return &Services{
		Item: NewItemService(repo, itemCache, a.Logger),
		Writes: NewWriteDispatcher(a.Producer, DispatcherConfig{
			CreatedTopic:       a.Config.KafkaItemCreatedTopic,
			UpdatedTopic:       a.Config.KafkaItemUpdatedTopic,
			LazyInitMaxRetries: a.Config.KafkaLazyInitMaxRetries,
			LazyInitRetryDelay: a.Config.KafkaInitRetryDelay,
		}, a.Logger),
	}
}
