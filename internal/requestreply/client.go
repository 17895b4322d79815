// Package requestreply runs a blocking purchase-order call over two one-way Kafka
// topics. The Client publishes requests tagged with a correlation id; the Router
// consumes the shared reply topic and hands each reply to the waiting caller.
package requestreply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"purchaseorders/internal/correlation"
	"purchaseorders/internal/envelope"
)

type Registry = correlation.Registry[envelope.ReplyEnvelope]

// Producer publishes request messages.
type Producer interface {
	Produce(ctx context.Context, msgs ...kafka.Message) error
}

type ClientConfig struct {
	RequestTopic string
	ReplyTopic   string
	Timeout      time.Duration
}

type Client struct {
	producer Producer
	registry *Registry
	cfg      ClientConfig
	logger   *zap.Logger
}

func NewClient(producer Producer, registry *Registry, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		producer: producer,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

type sendOptions struct {
	idempotencyKey string
}

type SendOption func(*sendOptions)

// WithIdempotencyKey lets a caller retry a purchase order without paying twice. Without
// it the executor deduplicates by correlation id, which only covers broker redelivery.
func WithIdempotencyKey(key string) SendOption {
	return func(o *sendOptions) { o.idempotencyKey = key }
}

// Send publishes order and waits for its reply. A timeout of zero uses the configured
// default. Errors match envelope.ErrTimeout, envelope.ErrTransport, or one of the
// business errors decoded from the reply.
func (c *Client) Send(ctx context.Context, order envelope.PurchaseOrder, timeout time.Duration, opts ...SendOption) (*envelope.PurchaseView, error) {
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	id, pending := c.registry.Register(timeout)
	logger := c.logger.With(zap.String("correlation_id", id), zap.String("account_id", order.AccountID))
	select {
	case <-pending.Done():
		_, err := pending.Result()
		return nil, c.waitError(ctx, id, err, logger)
	default:
	}

	msg, err := envelope.EncodeRequest(c.cfg.RequestTopic, envelope.RequestEnvelope{
		CorrelationID:  id,
		ReplyTopic:     c.cfg.ReplyTopic,
		IdempotencyKey: o.idempotencyKey,
		Order:          order,
	})
	if err != nil {
		c.registry.Fail(id, err)
		return nil, fmt.Errorf("failed to encode purchase order: %w", err)
	}

	if err := c.producer.Produce(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil, c.waitError(ctx, id, err, logger)
		}
		c.registry.Fail(id, err)
		logger.Error("Failed to publish purchase order", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", envelope.ErrTransport, err)
	}
	logger.Info("Purchase order sent, waiting for reply", zap.Time("deadline", pending.Deadline()))

	reply, err := pending.Wait(ctx)
	if err != nil {
		return nil, c.waitError(ctx, id, err, logger)
	}

	purchase, err := reply.Result()
	if err != nil {
		logger.Warn("Purchase order rejected", zap.Error(err))
		return nil, err
	}
	logger.Info("Purchase order completed", zap.String("purchase_id", purchase.ID))
	return purchase, nil
}

func (c *Client) waitError(ctx context.Context, id string, err error, logger *zap.Logger) error {
	switch {
	case ctx.Err() != nil && !errors.Is(err, correlation.ErrTimeout) && !errors.Is(err, correlation.ErrShutdown):
		c.registry.Fail(id, correlation.ErrCancelled)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Warn("Caller deadline passed before the reply arrived")
			return fmt.Errorf("%w: %w", envelope.ErrTimeout, ctx.Err())
		}
		logger.Info("Caller gave up waiting for the reply")
		return ctx.Err()
	case errors.Is(err, correlation.ErrTimeout):
		logger.Warn("No reply within deadline")
		return fmt.Errorf("%w: correlation id %s", envelope.ErrTimeout, id)
	case errors.Is(err, correlation.ErrShutdown):
		return fmt.Errorf("%w: %w", envelope.ErrTransport, err)
	default:
		return err
	}
}

// Pending is the number of requests still waiting for a reply.
func (c *Client) Pending() int {
	return c.registry.Len()
}

// Shutdown fails every waiting call. Later calls fail immediately.
func (c *Client) Shutdown() {
	c.registry.Shutdown()
}
