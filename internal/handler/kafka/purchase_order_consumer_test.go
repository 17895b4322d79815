package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"purchaseorders/internal/app/purchases"
	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
	"purchaseorders/internal/infrastructure/kafka/kafkatest"
	"purchaseorders/internal/repository/memory"
)

const (
	requestTopic      = "purchase-order"
	replyTopic        = "purchase-order-replies"
	notificationTopic = "notification"
)

func newService(t *testing.T, balance int64, purchasable bool) (purchases.PurchaseService, int64) {
	t.Helper()
	store := memory.NewStore()
	service := purchases.NewPurchaseService(store, purchases.Repositories{
		Customers: store.Customers(),
		Accounts:  store.Accounts(),
		Packages:  store.Packages(),
		Purchases: store.Purchases(),
		Inbox:     store.Inbox(),
		Outbox:    store.Outbox(),
	}, notificationTopic, zaptest.NewLogger(t))

	ctx := context.Background()
	_, err := service.CreateCustomer(ctx, purchases.CreateCustomerInput{
		ID:      "cust-1",
		Name:    "Ada",
		Surname: "Lovelace",
		Email:   "ada@example.com",
	})
	require.NoError(t, err)
	_, err = service.CreateAccount(ctx, purchases.CreateAccountInput{
		ID:         "acc-1",
		CustomerID: "cust-1",
		Balance:    decimal.NewFromInt(balance),
	})
	require.NoError(t, err)
	pkg, err := service.CreatePackage(ctx, purchases.CreatePackageInput{
		Name:        "Internet 10GB",
		Type:        domain.PackageInternet,
		Duration:    30,
		Purchasable: purchasable,
	})
	require.NoError(t, err)
	return service, pkg.ID
}

func requestMessage(t *testing.T, correlationID string, packageID int64, price int64) kafka.Message {
	t.Helper()
	msg, err := envelope.EncodeRequest(requestTopic, envelope.RequestEnvelope{
		CorrelationID: correlationID,
		ReplyTopic:    replyTopic,
		Order: envelope.PurchaseOrder{
			AccountID: "acc-1",
			PackageID: packageID,
			Price:     decimal.NewFromInt(price),
		},
	})
	require.NoError(t, err)
	return msg
}

func singleReply(t *testing.T, broker *kafkatest.Broker) envelope.ReplyEnvelope {
	t.Helper()
	replies := broker.Messages(replyTopic)
	require.Len(t, replies, 1)
	reply, err := envelope.DecodeReply(replies[0])
	require.NoError(t, err)
	return reply
}

func TestPurchaseOrderHandlerRepliesWithPurchase(t *testing.T) {
	broker := kafkatest.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	service, pkgID := newService(t, 100, true)
	handler := PurchaseOrderMessageHandler(service, broker, zaptest.NewLogger(t))

	require.NoError(t, handler(context.Background(), requestMessage(t, "corr-1", pkgID, 25)))

	reply := singleReply(t, broker)
	assert.Equal(t, "corr-1", reply.CorrelationID)
	require.NotNil(t, reply.Purchase)
	assert.Nil(t, reply.Error)
	assert.Equal(t, "Internet 10GB", reply.Purchase.Package.Name)
	assert.True(t, reply.Purchase.Price.Equal(decimal.NewFromInt(25)))
}

func TestPurchaseOrderHandlerRepliesWithErrorRecord(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		purchasable bool
		packageID   int64
		price       int64
		code        envelope.ErrorCode
		message     string
	}{
		{
			name:        "insufficient funds",
			balance:     100,
			purchasable: true,
			price:       150,
			code:        envelope.CodeInsufficientFunds,
			message:     "Insufficient account balance to make this purchase: Internet 10GB with the price of 150. Payment Required.",
		},
		{
			name:        "not purchasable",
			balance:     100,
			purchasable: false,
			price:       25,
			code:        envelope.CodeNotPossible,
			message:     "This package can not be purchased at this moment!",
		},
		{
			name:        "unknown package",
			balance:     100,
			purchasable: true,
			packageID:   42,
			price:       25,
			code:        envelope.CodeNotFound,
			message:     "No package found with this id: 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broker := kafkatest.NewBroker()
			t.Cleanup(func() { _ = broker.Close() })
			service, pkgID := newService(t, tt.balance, tt.purchasable)
			if tt.packageID != 0 {
				pkgID = tt.packageID
			}
			handler := PurchaseOrderMessageHandler(service, broker, zaptest.NewLogger(t))

			require.NoError(t, handler(context.Background(), requestMessage(t, "corr-1", pkgID, tt.price)))

			reply := singleReply(t, broker)
			assert.Equal(t, "corr-1", reply.CorrelationID)
			assert.Nil(t, reply.Purchase)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.code, reply.Error.Code)
			assert.Equal(t, tt.message, reply.Error.Message)

			account, err := service.GetAccount(context.Background(), "acc-1")
			require.NoError(t, err)
			assert.True(t, account.Balance.Equal(decimal.NewFromInt(tt.balance)))
		})
	}
}

func TestPurchaseOrderHandlerDropsUnanswerableRequest(t *testing.T) {
	broker := kafkatest.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	service, _ := newService(t, 100, true)
	handler := PurchaseOrderMessageHandler(service, broker, zaptest.NewLogger(t))

	err := handler(context.Background(), kafka.Message{Topic: requestTopic, Value: []byte(`{}`)})
	require.NoError(t, err)
	assert.Empty(t, broker.Messages(replyTopic))
}

func TestPurchaseOrderHandlerRejectsMalformedPayload(t *testing.T) {
	broker := kafkatest.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	service, _ := newService(t, 100, true)
	handler := PurchaseOrderMessageHandler(service, broker, zaptest.NewLogger(t))

	msg := kafka.Message{
		Topic: requestTopic,
		Value: []byte(`not json`),
		Headers: []kafka.Header{
			{Key: envelope.HeaderCorrelationID, Value: []byte("corr-1")},
			{Key: envelope.HeaderReplyTopic, Value: []byte(replyTopic)},
		},
	}
	require.NoError(t, handler(context.Background(), msg))

	reply := singleReply(t, broker)
	require.NotNil(t, reply.Error)
	assert.Equal(t, envelope.CodeNotPossible, reply.Error.Code)
}

func TestPurchaseOrderHandlerReturnsErrorWhenReplyFails(t *testing.T) {
	broker := kafkatest.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })
	service, pkgID := newService(t, 100, true)
	handler := PurchaseOrderMessageHandler(service, broker, zaptest.NewLogger(t))

	broker.FailProduce(errors.New("leader not available"))
	err := handler(context.Background(), requestMessage(t, "corr-1", pkgID, 25))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corr-1")

	// The redelivered request replays the committed purchase instead of debiting twice.
	broker.FailProduce(nil)
	require.NoError(t, handler(context.Background(), requestMessage(t, "corr-1", pkgID, 25)))
	reply := singleReply(t, broker)
	require.NotNil(t, reply.Purchase)

	account, err := service.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(75)))
}

func TestErrorRecordFor(t *testing.T) {
	tests := []struct {
		err     error
		code    envelope.ErrorCode
		message string
	}{
		{domain.Reject(domain.ErrAccountNotFound, "No account found with this id: x"), envelope.CodeNotFound, "No account found with this id: x"},
		{domain.ErrPurchaseNotFound, envelope.CodeNotFound, "purchase not found"},
		{domain.Reject(domain.ErrInsufficientFunds, "short"), envelope.CodeInsufficientFunds, "short"},
		{domain.Reject(domain.ErrPackageNotPurchasable, "closed"), envelope.CodeNotPossible, "closed"},
		{fmt.Errorf("wrapped: %w", domain.ErrRequestAlreadyProcessed), envelope.CodeNotPossible, "wrapped: purchase order already processed"},
		{domain.Reject(domain.ErrIdempotencyKeyMismatch, "Idempotency key reused with a different order"), envelope.CodeNotPossible, "Idempotency key reused with a different order"},
		{errors.New("connection reset"), envelope.CodeInternal, internalErrorMessage},
	}
	for _, tt := range tests {
		record := ErrorRecordFor(tt.err)
		assert.Equal(t, tt.code, record.Code, tt.err.Error())
		assert.Equal(t, tt.message, record.Message, tt.err.Error())
	}
}
