package purchases_repo

import (
	"context"

	"purchaseorders/internal/domain"
)

type PurchaseRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, purchase *domain.Purchase) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Purchase, error)
	GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Purchase, error)
	ListByAccountTx(ctx context.Context, querier domain.Querier, accountID string) ([]domain.Purchase, error)
	DeleteTx(ctx context.Context, querier domain.Querier, id string) error
}
