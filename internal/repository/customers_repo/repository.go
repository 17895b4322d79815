package customers_repo

import (
	"context"

	"purchaseorders/internal/domain"
)

type CustomerRepository interface {
	CreateCustomerTx(ctx context.Context, querier domain.Querier, customer *domain.Customer) error
	GetCustomerTx(ctx context.Context, querier domain.Querier, customerID string) (*domain.Customer, error)
}
