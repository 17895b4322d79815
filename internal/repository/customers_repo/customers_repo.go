package customers_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"purchaseorders/internal/domain"
)

type customerRepository struct{}

func NewCustomerRepository() *customerRepository {
	return &customerRepository{}
}

func (r *customerRepository) CreateCustomerTx(ctx context.Context, querier domain.Querier, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (id, name, surname, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := querier.ExecContext(ctx, query,
		customer.ID, customer.Name, customer.Surname, customer.Email, customer.CreatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrCustomerAlreadyExists
		}
		return fmt.Errorf("failed to create customer %s: %w", customer.ID, err)
	}
	return nil
}

func (r *customerRepository) GetCustomerTx(ctx context.Context, querier domain.Querier, customerID string) (*domain.Customer, error) {
	query := `SELECT id, name, surname, email, created_at FROM customers WHERE id = $1`
	customer := &domain.Customer{}
	err := querier.QueryRowContext(ctx, query, customerID).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Surname,
		&customer.Email,
		&customer.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("failed to get customer %s: %w", customerID, err)
	}
	return customer, nil
}
