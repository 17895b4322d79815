package packages_repo

import (
	"context"

	"purchaseorders/internal/domain"
)

type PackageRepository interface {
	// CreatePackageTx inserts pkg and sets its generated ID.
	CreatePackageTx(ctx context.Context, querier domain.Querier, pkg *domain.Package) error
	GetPackageTx(ctx context.Context, querier domain.Querier, packageID int64) (*domain.Package, error)
	SetPurchasableTx(ctx context.Context, querier domain.Querier, packageID int64, purchasable bool) error
}
