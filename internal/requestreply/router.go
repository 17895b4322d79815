package requestreply

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"purchaseorders/internal/envelope"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

// Router resolves pending requests from messages on the reply topic.
type Router struct {
	registry *Registry
	logger   *zap.Logger
}

func NewRouter(registry *Registry, logger *zap.Logger) *Router {
	return &Router{registry: registry, logger: logger}
}

// Run consumes replies until ctx ends or the consumer is closed.
func (r *Router) Run(ctx context.Context, consumer kafka_infra.Consumer) error {
	return consumer.Start(ctx, r.Handle)
}

// Handle never returns an error: replies are not redelivered, so a reply nobody waits
// for is logged and dropped.
func (r *Router) Handle(_ context.Context, msg kafka.Message) error {
	reply, err := envelope.DecodeReply(msg)
	if err != nil {
		if errors.Is(err, envelope.ErrMissingCorrelationID) {
			r.logger.Warn("Dropping reply without correlation id",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}
		r.logger.Error("Failed to decode reply",
			zap.String("correlation_id", reply.CorrelationID),
			zap.ByteString("value", msg.Value),
			zap.Error(err),
		)
		r.registry.Fail(reply.CorrelationID, envelope.ErrorRecord{
			Code:    envelope.CodeInternal,
			Message: fmt.Sprintf("undecodable reply: %v", err),
		}.Err())
		return nil
	}

	if !r.registry.Resolve(reply.CorrelationID, reply) {
		r.logger.Warn("Dropping reply for unknown or expired correlation id",
			zap.String("correlation_id", reply.CorrelationID),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
		)
		return nil
	}
	r.logger.Debug("Reply routed", zap.String("correlation_id", reply.CorrelationID))
	return nil
}
