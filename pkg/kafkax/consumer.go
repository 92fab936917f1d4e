package kafkax

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghuser/inventory/pkg/logger"
)

// ConsumerConfig configures a consumer-group reader over one or more topics.
type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	GroupID string

	// StartOffset is where a group with no committed offset starts reading:
	// "first" (default) or "last".
	StartOffset string

	MinBytes int
	MaxBytes int
}

// Consumer is a consumer-group reader with manual offset commits.
// Offsets advance only through CommitMessages.
type Consumer struct {
	mu  sync.Mutex
	r   *kafka.Reader
	cfg kafka.ReaderConfig
}

// NewConsumer validates cfg and creates the group reader. A validation failure
// means the subscription cannot be established and is returned as an error.
func NewConsumer(cfg ConsumerConfig, log logger.Logger) (*Consumer, error) {
	rc := readerConfig(cfg, log)
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("kafka subscribe %v as %q: %w", cfg.Topics, cfg.GroupID, err)
	}
	return &Consumer{cfg: rc, r: kafka.NewReader(rc)}, nil
}

func readerConfig(cfg ConsumerConfig, log logger.Logger) kafka.ReaderConfig {
	minB, maxB := cfg.MinBytes, cfg.MaxBytes
	if minB == 0 {
		minB = 1
	}
	if maxB == 0 {
		maxB = 10e6
	}

	start := kafka.FirstOffset
	if strings.EqualFold(cfg.StartOffset, "last") {
		start = kafka.LastOffset
	}

	rc := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		StartOffset:    start,
		MinBytes:       minB,
		MaxBytes:       maxB,
		MaxWait:        500 * time.Millisecond,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		// Zero CommitInterval makes CommitMessages synchronous.
		CommitInterval: 0,
		ErrorLogger:    errorLogger(log.With("component", "kafka-consumer")),
	}
	if len(cfg.Topics) == 1 {
		rc.Topic = cfg.Topics[0]
	} else {
		rc.GroupTopics = cfg.Topics
	}
	return rc
}

// FetchMessage blocks until the next message is available. It does not commit.
func (c *Consumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return kafka.Message{}, io.EOF
	}
	return r.FetchMessage(ctx)
}

// CommitMessages commits the offsets of msgs for the group.
func (c *Consumer) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	r := c.r
	c.mu.Unlock()
	if r == nil {
		return io.ErrClosedPipe
	}
	return r.CommitMessages(ctx, msgs...)
}

// Reopen closes the reader and creates a new one with the same config. The
// group then resumes from the last committed offset, which redelivers every
// message fetched but not committed.
func (c *Consumer) Reopen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r != nil {
		_ = c.r.Close()
	}
	c.r = kafka.NewReader(c.cfg)
	return nil
}

// Close leaves the group and releases the reader.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return nil
	}
	err := c.r.Close()
	c.r = nil
	return err
}
