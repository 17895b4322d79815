package purchases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"purchaseorders/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

type CreateCustomerInput struct {
	ID      string
	Name    string
	Surname string
	Email   string
}

type CreateAccountInput struct {
	ID         string
	CustomerID string
	Balance    decimal.Decimal
	TariffType domain.TariffType
}

type CreatePackageInput struct {
	Name        string
	Type        domain.PackageType
	Duration    int64
	Purchasable bool
}

func (s *purchaseService) CreateCustomer(ctx context.Context, input CreateCustomerInput) (*domain.Customer, error) {
	if input.Name == "" || input.Surname == "" {
		return nil, fmt.Errorf("%w: customer name and surname are required", ErrInvalidInput)
	}
	if !strings.Contains(input.Email, "@") {
		return nil, fmt.Errorf("%w: invalid email %q", ErrInvalidInput, input.Email)
	}
	if input.ID == "" {
		input.ID = s.newID()
	}

	customer := &domain.Customer{
		ID:        input.ID,
		Name:      input.Name,
		Surname:   input.Surname,
		Email:     input.Email,
		CreatedAt: s.now().UTC(),
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return s.repos.Customers.CreateCustomerTx(ctx, q, customer)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Customer created", zap.String("customer_id", customer.ID))
	return customer, nil
}

func (s *purchaseService) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	return s.repos.Customers.GetCustomerTx(ctx, s.tx.Querier(), customerID)
}

func (s *purchaseService) ListCustomerAccounts(ctx context.Context, customerID string) ([]domain.Account, error) {
	q := s.tx.Querier()
	if _, err := s.repos.Customers.GetCustomerTx(ctx, q, customerID); err != nil {
		return nil, err
	}
	return s.repos.Accounts.ListByCustomerTx(ctx, q, customerID)
}

func (s *purchaseService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	if input.CustomerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if input.Balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance cannot be negative", ErrInvalidInput)
	}
	switch input.TariffType {
	case domain.TariffEconomy, domain.TariffStandard, domain.TariffPremium:
	case "":
		input.TariffType = domain.TariffStandard
	default:
		return nil, fmt.Errorf("%w: unknown tariff type %q", ErrInvalidInput, input.TariffType)
	}
	if input.ID == "" {
		input.ID = s.newID()
	}

	now := s.now().UTC()
	account := &domain.Account{
		ID:         input.ID,
		CustomerID: input.CustomerID,
		Balance:    input.Balance,
		TariffType: input.TariffType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		if _, err := s.repos.Customers.GetCustomerTx(ctx, q, account.CustomerID); err != nil {
			return err
		}
		return s.repos.Accounts.CreateAccountTx(ctx, q, account)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Account created", zap.String("account_id", account.ID), zap.String("balance", account.Balance.String()))
	return account, nil
}

func (s *purchaseService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.repos.Accounts.GetAccountTx(ctx, s.tx.Querier(), accountID)
}

func (s *purchaseService) CreatePackage(ctx context.Context, input CreatePackageInput) (*domain.Package, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: package name is required", ErrInvalidInput)
	}
	switch input.Type {
	case domain.PackageCombo, domain.PackageCall, domain.PackageInternet, domain.PackageSocial:
	default:
		return nil, fmt.Errorf("%w: unknown package type %q", ErrInvalidInput, input.Type)
	}
	if input.Duration < 0 {
		return nil, fmt.Errorf("%w: duration cannot be negative", ErrInvalidInput)
	}

	pkg := &domain.Package{
		Name:        input.Name,
		Type:        input.Type,
		Duration:    input.Duration,
		Purchasable: input.Purchasable,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		return s.repos.Packages.CreatePackageTx(ctx, q, pkg)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Package created", zap.Int64("package_id", pkg.ID), zap.String("name", pkg.Name))
	return pkg, nil
}

func (s *purchaseService) GetPackage(ctx context.Context, packageID int64) (*domain.Package, error) {
	return s.repos.Packages.GetPackageTx(ctx, s.tx.Querier(), packageID)
}

func (s *purchaseService) SetPackagePurchasable(ctx context.Context, packageID int64, purchasable bool) (*domain.Package, error) {
	var pkg *domain.Package
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		if err := s.repos.Packages.SetPurchasableTx(ctx, q, packageID, purchasable); err != nil {
			return err
		}
		var err error
		pkg, err = s.repos.Packages.GetPackageTx(ctx, q, packageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}
