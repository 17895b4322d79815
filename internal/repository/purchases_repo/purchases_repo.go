package purchases_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"purchaseorders/internal/domain"
)

const purchaseColumns = `id, account_id, package_id, price, purchase_date`

type purchaseRepository struct{}

func NewPurchaseRepository() *purchaseRepository {
	return &purchaseRepository{}
}

func (r *purchaseRepository) CreateTx(ctx context.Context, querier domain.Querier, purchase *domain.Purchase) error {
	query := `
		INSERT INTO purchases (id, account_id, package_id, price, purchase_date)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := querier.ExecContext(ctx, query,
		purchase.ID,
		purchase.AccountID,
		purchase.PackageID,
		purchase.Price,
		purchase.PurchaseDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

func (r *purchaseRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Purchase, error) {
	return r.get(ctx, querier, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
}

func (r *purchaseRepository) GetByIDForUpdateTx(ctx context.Context, querier domain.Querier, id string) (*domain.Purchase, error) {
	return r.get(ctx, querier, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1 FOR UPDATE`, id)
}

func (r *purchaseRepository) get(ctx context.Context, querier domain.Querier, query, id string) (*domain.Purchase, error) {
	purchase := &domain.Purchase{}
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&purchase.ID,
		&purchase.AccountID,
		&purchase.PackageID,
		&purchase.Price,
		&purchase.PurchaseDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase by id %s: %w", id, err)
	}
	return purchase, nil
}

func (r *purchaseRepository) ListByAccountTx(ctx context.Context, querier domain.Querier, accountID string) ([]domain.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE account_id = $1 ORDER BY purchase_date ASC`
	rows, err := querier.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var purchases []domain.Purchase
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.AccountID, &p.PackageID, &p.Price, &p.PurchaseDate); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}

func (r *purchaseRepository) DeleteTx(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for purchase delete: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPurchaseNotFound
	}
	return nil
}
