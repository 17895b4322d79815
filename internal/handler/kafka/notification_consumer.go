package kafka

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"purchaseorders/internal/domain"
	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

func NotificationMessageHandler(logger *zap.Logger) kafka_infra.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event domain.PurchaseConfirmedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("Failed to unmarshal purchase notification",
				zap.Error(err),
				zap.ByteString("value", msg.Value),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
			return nil
		}

		logger.Info("Purchase confirmed",
			zap.String("purchase_id", event.PurchaseID),
			zap.String("account_id", event.AccountID),
			zap.Int64("package_id", event.PackageID),
			zap.String("package_name", event.PackageName),
			zap.String("price", event.Price.String()),
			zap.Time("purchase_date", event.PurchaseDate),
		)
		return nil
	}
}
