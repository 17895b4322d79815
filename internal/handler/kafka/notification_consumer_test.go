package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"purchaseorders/internal/domain"
)

func TestNotificationMessageHandlerLogsPurchase(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := NotificationMessageHandler(zap.New(core))

	payload, err := json.Marshal(domain.PurchaseConfirmedEvent{
		PurchaseID:   "p-1",
		AccountID:    "acc-1",
		PackageID:    7,
		PackageName:  "Social",
		Price:        decimal.RequireFromString("12.50"),
		PurchaseDate: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), kafka.Message{Topic: notificationTopic, Value: payload}))

	entries := logs.FilterMessage("Purchase confirmed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "p-1", fields["purchase_id"])
	assert.Equal(t, "Social", fields["package_name"])
	assert.Equal(t, "12.5", fields["price"])
}

func TestNotificationMessageHandlerSkipsGarbage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := NotificationMessageHandler(zap.New(core))

	require.NoError(t, handler(context.Background(), kafka.Message{Value: []byte("{")}))
	assert.Equal(t, 1, logs.FilterMessage("Failed to unmarshal purchase notification").Len())
}
