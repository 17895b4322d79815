package kafka_infra

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes messages to the topic set on each message.
type Producer interface {
	Produce(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is the part of *kafka.Writer the producer depends on.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaProducer struct {
	writer       Writer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewProducer returns a synchronous producer. Messages are spread over partitions by
// key hash, so equal keys keep their relative order.
func NewProducer(brokerURLs []string, logger *zap.Logger) Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokerURLs...),
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: false,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	return NewProducerWithWriter(writer, writer.WriteTimeout, logger)
}

func NewProducerWithWriter(writer Writer, writeTimeout time.Duration, logger *zap.Logger) Producer {
	return &kafkaProducer{
		writer:       writer,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

func (p *kafkaProducer) Produce(ctx context.Context, msgs ...kafka.Message) error {
	produceCtx := ctx
	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		produceCtx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	if err := p.writer.WriteMessages(produceCtx, msgs...); err != nil {
		for _, msg := range msgs {
			p.logger.Error("Failed to produce message to Kafka",
				zap.String("topic", msg.Topic),
				zap.String("key", string(msg.Key)),
				zap.Error(err),
			)
		}
		return fmt.Errorf("failed to produce message to Kafka: %w", err)
	}
	for _, msg := range msgs {
		p.logger.Debug("Message produced to Kafka successfully",
			zap.String("topic", msg.Topic),
			zap.String("key", string(msg.Key)),
		)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka Producer closed.")
	return nil
}
