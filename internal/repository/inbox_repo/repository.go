package inbox_repo

import (
	"context"

	"purchaseorders/internal/domain"
)

type InboxRepository interface {
	// CreateMessageTx fails with domain.ErrRequestAlreadyProcessed when the idempotency
	// key has already been recorded.
	CreateMessageTx(ctx context.Context, querier domain.Querier, msg *domain.InboxMessage) error
	GetMessageByKeyTx(ctx context.Context, querier domain.Querier, idempotencyKey string) (*domain.InboxMessage, error)
}
