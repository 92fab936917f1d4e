package consumer

import (
	"fmt"

	"github.com/ghuser/inventory/pkg/app"
	"github.com/ghuser/inventory/pkg/kafkax"
	"github.com/ghuser/inventory/pkg/telemetry"
	"github.com/ghuser/inventory/services/item/infrastructure/persistence/postgres"
)

// NewFromApp subscribes to the configured item topics as the configured group
// and returns a Consumer writing to Postgres. Applied changes are announced on
// a.EventBus when it is set.
func NewFromApp(a *app.Application) (*Consumer, error) {
	cfg := a.Config
	reader, err := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers: cfg.Brokers(),
		Topics:  cfg.ItemTopics(),
		GroupID: cfg.KafkaConsumerGroup,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("item consumer: %w", err)
	}

	c, err := New(reader, postgres.NewItemRepository(a.Db, a.EventBus), Config{
		CreatedTopic: cfg.KafkaItemCreatedTopic,
		UpdatedTopic: cfg.KafkaItemUpdatedTopic,
	}, a.Logger, WithErrorReporter(telemetry.ReportError))
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("item consumer: %w", err)
	}
	return c, nil
}
