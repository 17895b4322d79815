package inbox_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"purchaseorders/internal/domain"
)

// ErrMessageNotFound is returned by GetMessageByKeyTx for keys that were never recorded.
var ErrMessageNotFound = errors.New("inbox message not found")

type inboxRepository struct{}

func NewInboxRepository() *inboxRepository {
	return &inboxRepository{}
}

func (r *inboxRepository) CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error {
	query := `
		INSERT INTO inbox_messages (idempotency_key, correlation_id, purchase_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.IdempotencyKey,
		msg.CorrelationID,
		msg.PurchaseID,
		msg.Payload,
		msg.ReceivedAt,
	)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("idempotency key %s: %w", msg.IdempotencyKey, domain.ErrRequestAlreadyProcessed)
		}
		return fmt.Errorf("failed to create inbox message: %w", err)
	}
	return nil
}

func (r *inboxRepository) GetMessageByKeyTx(ctx context.Context, querier domain.Querier, idempotencyKey string) (*domain.InboxMessage, error) {
	query := `
		SELECT idempotency_key, correlation_id, purchase_id, payload, received_at
		FROM inbox_messages
		WHERE idempotency_key = $1
	`
	msg := &domain.InboxMessage{}
	err := querier.QueryRowContext(ctx, query, idempotencyKey).Scan(
		&msg.IdempotencyKey,
		&msg.CorrelationID,
		&msg.PurchaseID,
		&msg.Payload,
		&msg.ReceivedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get inbox message by key %s: %w", idempotencyKey, err)
	}
	return msg, nil
}
