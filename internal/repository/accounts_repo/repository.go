package accounts_repo

import (
	"context"

	"github.com/shopspring/decimal"

	"purchaseorders/internal/domain"
)

type AccountRepository interface {
	CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error
	GetAccountTx(ctx context.Context, querier domain.Querier, accountID string) (*domain.Account, error)
	ListByCustomerTx(ctx context.Context, querier domain.Querier, customerID string) ([]domain.Account, error)
	GetAccountForUpdateTx(ctx context.Context, querier domain.Querier, accountID string) (*domain.Account, error)
	// AdjustBalanceTx adds delta to the balance and returns the updated account. It
	// fails with domain.ErrInsufficientFunds rather than leave a negative balance.
	AdjustBalanceTx(ctx context.Context, querier domain.Querier, accountID string, delta decimal.Decimal) (*domain.Account, error)
}
