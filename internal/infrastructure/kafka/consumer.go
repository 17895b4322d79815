package kafka_infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageHandler handles one message. A non-nil error makes the consumer run the handler
// again for the same message after a backoff. Later messages of the partition wait, and
// the offset is committed only once the handler succeeds.
type MessageHandler func(ctx context.Context, msg kafka.Message) error

type Consumer interface {
	Start(ctx context.Context, handler MessageHandler) error
	Stop()
	Close() error
}

// Reader is the part of *kafka.Reader the consumer depends on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// StartOffset applies when the group has no committed offset yet.
	StartOffset    int64
	HandlerTimeout time.Duration
	// RetryBackoff is the first pause before a failed message is handled again. It
	// doubles on every further failure up to maxRetryBackoff.
	RetryBackoff time.Duration
}

const maxRetryBackoff = 30 * time.Second

type kafkaConsumer struct {
	reader         Reader
	logger         *zap.Logger
	topic          string
	groupID        string
	handlerTimeout time.Duration
	retryBackoff   time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) Consumer {
	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:                cfg.Brokers,
		GroupID:                cfg.GroupID,
		Topic:                  cfg.Topic,
		StartOffset:            startOffset,
		MinBytes:               1,
		MaxBytes:               10e6,
		MaxWait:                500 * time.Millisecond,
		ReadBatchTimeout:       1 * time.Second,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
		HeartbeatInterval:      3 * time.Second,
		PartitionWatchInterval: 5 * time.Second,
		MaxAttempts:            3,
	})
	return NewConsumerWithReader(reader, cfg, logger)
}

func NewConsumerWithReader(reader Reader, cfg ConsumerConfig, logger *zap.Logger) Consumer {
	handlerTimeout := cfg.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = 25 * time.Second
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 1 * time.Second
	}
	return &kafkaConsumer{
		reader:         reader,
		logger:         logger,
		topic:          cfg.Topic,
		groupID:        cfg.GroupID,
		handlerTimeout: handlerTimeout,
		retryBackoff:   retryBackoff,
	}
}

// Start consumes until ctx is cancelled, Stop is called or the reader is closed.
// Messages of one partition are handled strictly in order.
func (c *kafkaConsumer) Start(ctx context.Context, handler MessageHandler) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.logger.Info("Kafka consumer starting", zap.String("topic", c.topic), zap.String("group_id", c.groupID))

	for {
		msg, err := c.reader.FetchMessage(consumerCtx)
		if err != nil {
			if consumerCtx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, kafka.ErrGroupClosed) {
				c.logger.Info("Kafka consumer stopping", zap.String("topic", c.topic), zap.Error(err))
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", zap.String("topic", c.topic), zap.Error(err))
			select {
			case <-consumerCtx.Done():
				return nil
			case <-time.After(1 * time.Second):
			}
			continue
		}

		c.logger.Debug("Received Kafka message",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		if !c.handle(consumerCtx, handler, msg) {
			c.logger.Info("Kafka consumer stopping before message was handled",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		commitCtx, cancelCommit := context.WithTimeout(context.Background(), 5*time.Second)
		if commitErr := c.reader.CommitMessages(commitCtx, msg); commitErr != nil {
			c.logger.Error("Failed to commit offset for Kafka message",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(commitErr),
			)
		}
		cancelCommit()
	}
}

// handle runs handler for msg until it succeeds. It returns false when ctx ends first,
// in which case the offset must stay uncommitted.
func (c *kafkaConsumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) bool {
	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		handleCtx, cancelHandler := context.WithTimeout(ctx, c.handlerTimeout)
		err := handler(handleCtx, msg)
		cancelHandler()
		if err == nil {
			return true
		}

		c.logger.Error("Error handling Kafka message, retrying",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

func (c *kafkaConsumer) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.logger.Info("Kafka consumer stop signal sent.", zap.String("topic", c.topic))
}

func (c *kafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.reader.Close(); err != nil {
		c.logger.Error("Failed to close Kafka consumer reader", zap.Error(err), zap.String("topic", c.topic))
		return fmt.Errorf("failed to close Kafka consumer reader: %w", err)
	}
	c.logger.Info("Kafka consumer reader closed.", zap.String("topic", c.topic))
	return nil
}
