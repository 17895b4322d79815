package packages_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"purchaseorders/internal/domain"
)

type packageRepository struct{}

func NewPackageRepository() *packageRepository {
	return &packageRepository{}
}

func (r *packageRepository) CreatePackageTx(ctx context.Context, querier domain.Querier, pkg *domain.Package) error {
	query := `
		INSERT INTO packages (name, package_type, duration, purchasable)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := querier.QueryRowContext(ctx, query, pkg.Name, pkg.Type, pkg.Duration, pkg.Purchasable).Scan(&pkg.ID)
	if err != nil {
		return fmt.Errorf("failed to create package %q: %w", pkg.Name, err)
	}
	return nil
}

func (r *packageRepository) GetPackageTx(ctx context.Context, querier domain.Querier, packageID int64) (*domain.Package, error) {
	query := `
		SELECT id, name, package_type, duration, purchasable
		FROM packages
		WHERE id = $1
	`
	pkg := &domain.Package{}
	err := querier.QueryRowContext(ctx, query, packageID).Scan(
		&pkg.ID,
		&pkg.Name,
		&pkg.Type,
		&pkg.Duration,
		&pkg.Purchasable,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get package %d: %w", packageID, err)
	}
	return pkg, nil
}

func (r *packageRepository) SetPurchasableTx(ctx context.Context, querier domain.Querier, packageID int64, purchasable bool) error {
	res, err := querier.ExecContext(ctx, `UPDATE packages SET purchasable = $1 WHERE id = $2`, purchasable, packageID)
	if err != nil {
		return fmt.Errorf("failed to update package %d: %w", packageID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}
