package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"purchaseorders/internal/app/purchases"
	"purchaseorders/internal/correlation"
	"purchaseorders/internal/envelope"
	"purchaseorders/internal/infrastructure/kafka/kafkatest"
	"purchaseorders/internal/requestreply"
)

type flow struct {
	broker   *kafkatest.Broker
	registry *requestreply.Registry
	client   *requestreply.Client
	service  purchases.PurchaseService
	pkgID    int64
}

// newFlow wires the edge client and the core executor over one in-memory broker.
func newFlow(t *testing.T, balance int64, purchasable bool) *flow {
	t.Helper()
	logger := zaptest.NewLogger(t)
	broker := kafkatest.NewBroker()
	t.Cleanup(func() { _ = broker.Close() })

	service, pkgID := newService(t, balance, purchasable)
	broker.Subscribe(requestTopic, PurchaseOrderMessageHandler(service, broker, logger))

	registry := correlation.NewRegistry[envelope.ReplyEnvelope](logger)
	broker.Subscribe(replyTopic, requestreply.NewRouter(registry, logger).Handle)
	client := requestreply.NewClient(broker, registry, requestreply.ClientConfig{
		RequestTopic: requestTopic,
		ReplyTopic:   replyTopic,
		Timeout:      2 * time.Second,
	}, logger)

	return &flow{broker: broker, registry: registry, client: client, service: service, pkgID: pkgID}
}

func (f *flow) send(t *testing.T, price int64, timeout time.Duration) (*envelope.PurchaseView, error) {
	t.Helper()
	return f.client.Send(context.Background(), envelope.PurchaseOrder{
		AccountID: "acc-1",
		PackageID: f.pkgID,
		Price:     decimal.NewFromInt(price),
	}, timeout)
}

func (f *flow) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := f.service.GetAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	return account.Balance
}

func TestPurchaseFlowSucceeds(t *testing.T) {
	f := newFlow(t, 100, true)

	purchase, err := f.send(t, 25, 0)
	require.NoError(t, err)
	require.NotNil(t, purchase)
	assert.Equal(t, "acc-1", purchase.AccountID)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(75)))
	assert.Zero(t, f.client.Pending())
}

func TestPurchaseFlowInsufficientFunds(t *testing.T) {
	f := newFlow(t, 100, true)

	_, err := f.send(t, 150, 0)
	require.ErrorIs(t, err, envelope.ErrInsufficientFunds)
	replyErr, ok := envelope.AsReplyError(err)
	require.True(t, ok)
	assert.Equal(t, envelope.KindInsufficientFunds, replyErr.Kind)
	assert.Equal(t, envelope.CodeInsufficientFunds, replyErr.Record.Code)
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
}

func TestPurchaseFlowNotPossible(t *testing.T) {
	f := newFlow(t, 100, false)

	_, err := f.send(t, 25, 0)
	require.ErrorIs(t, err, envelope.ErrNotPossible)
	assert.EqualError(t, err, "This package can not be purchased at this moment!")
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
}

func TestPurchaseFlowTimesOutWithoutReply(t *testing.T) {
	f := newFlow(t, 100, true)
	f.broker.Pause(requestTopic)

	_, err := f.send(t, 25, 50*time.Millisecond)
	require.ErrorIs(t, err, envelope.ErrTimeout)

	requests := f.broker.Messages(requestTopic)
	require.Len(t, requests, 1)
	id := envelope.Header(requests[0], envelope.HeaderCorrelationID)
	require.NotEmpty(t, id)
	assert.False(t, f.registry.Contains(id))
	assert.Zero(t, f.registry.Len())
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
}

func TestPurchaseFlowReversal(t *testing.T) {
	f := newFlow(t, 100, true)

	purchase, err := f.send(t, 25, 0)
	require.NoError(t, err)
	require.NoError(t, f.service.DeletePurchase(context.Background(), purchase.ID))
	assert.True(t, f.balance(t).Equal(decimal.NewFromInt(100)))
}
