package purchaseorders

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
	"purchaseorders/internal/repository/errors_repo"
	"purchaseorders/internal/requestreply"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Sender interface {
	Send(ctx context.Context, order envelope.PurchaseOrder, timeout time.Duration, opts ...requestreply.SendOption) (*envelope.PurchaseView, error)
}

type PurchaseOrderService interface {
	PlaceOrder(ctx context.Context, order envelope.PurchaseOrder, idempotencyKey string) (*envelope.PurchaseView, error)
	ListErrorRecords(ctx context.Context, after string, limit int64) ([]domain.ErrorAuditEntry, error)
}

type purchaseOrderService struct {
	sender  Sender
	records errors_repo.ErrorRecordRepository
	timeout time.Duration
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewPurchaseOrderService(sender Sender, records errors_repo.ErrorRecordRepository, timeout time.Duration, metrics *Metrics, logger *zap.Logger) PurchaseOrderService {
	return &purchaseOrderService{
		sender:  sender,
		records: records,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *purchaseOrderService) PlaceOrder(ctx context.Context, order envelope.PurchaseOrder, idempotencyKey string) (*envelope.PurchaseView, error) {
	if err := order.Validate(); err != nil {
		s.metrics.observe(outcomeInvalid)
		return nil, err
	}

	var opts []requestreply.SendOption
	if idempotencyKey != "" {
		opts = append(opts, requestreply.WithIdempotencyKey(idempotencyKey))
	}

	purchase, err := s.sender.Send(ctx, order, s.timeout, opts...)
	if err == nil {
		s.metrics.observe(outcomeOK)
		return purchase, nil
	}

	replyErr, ok := envelope.AsReplyError(err)
	switch {
	case ok:
		s.metrics.observe(replyErr.Kind.String())
		s.record(ctx, order, replyErr.Record)
	case errors.Is(err, envelope.ErrTimeout):
		s.metrics.observe(outcomeTimeout)
	case errors.Is(err, envelope.ErrTransport):
		s.metrics.observe(outcomeTransport)
	default:
		s.metrics.observe(outcomeCancelled)
	}
	return nil, err
}

// record appends a business failure to the audit log. A failed append is logged and
// does not change the caller's result.
func (s *purchaseOrderService) record(ctx context.Context, order envelope.PurchaseOrder, rec envelope.ErrorRecord) {
	id, err := s.records.Append(context.WithoutCancel(ctx), domain.ErrorAuditEntry{
		Code:       int(rec.Code),
		Message:    rec.Message,
		AccountID:  order.AccountID,
		PackageID:  order.PackageID,
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("Failed to store error record", zap.Int("code", int(rec.Code)), zap.Error(err))
		return
	}
	s.logger.Info("Error record stored", zap.String("record_id", id), zap.Int("code", int(rec.Code)))
}

func (s *purchaseOrderService) ListErrorRecords(ctx context.Context, after string, limit int64) ([]domain.ErrorAuditEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.records.List(ctx, after, limit)
}
