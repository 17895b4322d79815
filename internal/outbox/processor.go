package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"purchaseorders/internal/domain"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

const HeaderMessageType = "message_type"

type OutboxRepository interface {
	GetPendingMessages(ctx context.Context, querier domain.Querier, limit int) ([]domain.OutboxMessage, error)
	UpdateMessageStatusTx(ctx context.Context, querier domain.Querier, id string, status domain.OutboxMessageStatus) error
}

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, q domain.Querier) error) error
}

// Processor relays pending outbox messages to Kafka. A message is marked SENT in the
// same transaction that selected it, so a failed publish leaves it PENDING.
type Processor struct {
	tx             Transactor
	outboxRepo     OutboxRepository
	kafkaProducer  kafka_infra.Producer
	pollInterval   time.Duration
	pollTimeout    time.Duration
	batchSize      int
	logger         *zap.Logger
	shutdownSignal chan struct{}
	shutdownOnce   sync.Once
}

func NewProcessor(
	tx Transactor,
	outboxRepo OutboxRepository,
	kafkaProducer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		tx:             tx,
		outboxRepo:     outboxRepo,
		kafkaProducer:  kafkaProducer,
		pollInterval:   pollInterval,
		pollTimeout:    pollTimeout,
		batchSize:      batchSize,
		logger:         logger,
		shutdownSignal: make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped by context")
			return
		case <-p.shutdownSignal:
			p.logger.Info("Outbox processor stopped")
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

func (p *Processor) Stop() {
	p.shutdownOnce.Do(func() {
		p.logger.Info("Signaling outbox processor to stop...")
		close(p.shutdownSignal)
	})
}

// ProcessOnce relays one batch and returns how many messages were sent.
func (p *Processor) ProcessOnce(ctx context.Context) int {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	sent := 0
	err := p.tx.WithinTx(pollCtx, func(ctx context.Context, q domain.Querier) error {
		messages, err := p.outboxRepo.GetPendingMessages(ctx, q, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if err := p.kafkaProducer.Produce(ctx, toKafkaMessage(msg)); err != nil {
				p.logger.Error("Failed to send outbox message to Kafka",
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Error(err))
				// Keep what was already published marked as sent.
				return nil
			}
			if err := p.outboxRepo.UpdateMessageStatusTx(ctx, q, msg.ID, domain.OutboxStatusSent); err != nil {
				return err
			}
			sent++
			p.logger.Info("Outbox message relayed",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("topic", msg.Topic))
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Failed to relay outbox messages", zap.Error(err))
		return 0
	}
	return sent
}

func toKafkaMessage(msg domain.OutboxMessage) kafka.Message {
	return kafka.Message{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderMessageType, Value: []byte(msg.MessageType)},
		},
	}
}
