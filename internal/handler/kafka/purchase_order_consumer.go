package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"purchaseorders/internal/app/purchases"
	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

const internalErrorMessage = "The purchase order could not be processed"

// PurchaseOrderMessageHandler executes every request and publishes exactly one reply on
// the request's reply topic. It returns an error only when the reply could not be
// published. The consumer then retries the same request, which replays the committed
// purchase through the inbox.
func PurchaseOrderMessageHandler(service purchases.PurchaseService, producer kafka_infra.Producer, logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		logger.Info("Received purchase order",
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.String("key", string(msg.Key)),
		)

		req, err := envelope.DecodeRequest(msg)
		if errors.Is(err, envelope.ErrMissingCorrelationID) || errors.Is(err, envelope.ErrMissingReplyTopic) {
			logger.Warn("Dropping purchase order that cannot be answered",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return nil
		}

		reply := envelope.ReplyEnvelope{CorrelationID: req.CorrelationID}
		if err != nil {
			logger.Warn("Rejecting malformed purchase order",
				zap.String("correlation_id", req.CorrelationID),
				zap.ByteString("value", msg.Value),
				zap.Error(err),
			)
			reply.Error = &envelope.ErrorRecord{Code: envelope.CodeNotPossible, Message: "Malformed purchase order"}
		} else {
			view, processErr := service.ProcessPurchaseOrder(ctx, req)
			if processErr != nil {
				record := ErrorRecordFor(processErr)
				reply.Error = &record
			} else {
				reply.Purchase = view
			}
		}

		out, err := envelope.EncodeReply(req.ReplyTopic, reply)
		if err != nil {
			logger.Error("Failed to encode reply", zap.String("correlation_id", req.CorrelationID), zap.Error(err))
			return nil
		}
		if err := producer.Produce(ctx, out); err != nil {
			return fmt.Errorf("failed to publish reply for correlation id %s: %w", req.CorrelationID, err)
		}

		if reply.Error != nil {
			logger.Info("Replied with error",
				zap.String("correlation_id", req.CorrelationID),
				zap.Int("code", int(reply.Error.Code)),
				zap.String("message", reply.Error.Message),
			)
		} else {
			logger.Info("Replied with purchase",
				zap.String("correlation_id", req.CorrelationID),
				zap.String("purchase_id", reply.Purchase.ID),
			)
		}
		return nil
	}
}

// ErrorRecordFor maps an executor error onto the wire error code.
func ErrorRecordFor(err error) envelope.ErrorRecord {
	var code envelope.ErrorCode
	switch {
	case errors.Is(err, domain.ErrPackageNotFound),
		errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrPurchaseNotFound):
		code = envelope.CodeNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		code = envelope.CodeInsufficientFunds
	case errors.Is(err, domain.ErrPackageNotPurchasable),
		errors.Is(err, domain.ErrRequestAlreadyProcessed),
		errors.Is(err, domain.ErrIdempotencyKeyMismatch):
		code = envelope.CodeNotPossible
	default:
		return envelope.ErrorRecord{Code: envelope.CodeInternal, Message: internalErrorMessage}
	}

	var rejection *domain.RejectionError
	if errors.As(err, &rejection) {
		return envelope.ErrorRecord{Code: code, Message: rejection.Message}
	}
	return envelope.ErrorRecord{Code: code, Message: err.Error()}
}
