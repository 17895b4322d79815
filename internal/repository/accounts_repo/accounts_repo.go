package accounts_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"purchaseorders/internal/domain"
)

const accountColumns = `id, customer_id, balance, tariff_type, created_at, updated_at`

type accountRepository struct{}

func NewAccountRepository() *accountRepository {
	return &accountRepository{}
}

func (r *accountRepository) CreateAccountTx(ctx context.Context, querier domain.Querier, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, customer_id, balance, tariff_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier.ExecContext(ctx, query,
		account.ID, account.CustomerID, account.Balance, account.TariffType, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

func (r *accountRepository) GetAccountTx(ctx context.Context, querier domain.Querier, accountID string) (*domain.Account, error) {
	return r.get(ctx, querier, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID)
}

func (r *accountRepository) GetAccountForUpdateTx(ctx context.Context, querier domain.Querier, accountID string) (*domain.Account, error) {
	return r.get(ctx, querier, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID)
}

func (r *accountRepository) ListByCustomerTx(ctx context.Context, querier domain.Querier, customerID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE customer_id = $1 ORDER BY created_at, id`
	rows, err := querier.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(
			&account.ID,
			&account.CustomerID,
			&account.Balance,
			&account.TariffType,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) get(ctx context.Context, querier domain.Querier, query, accountID string) (*domain.Account, error) {
	account, err := scanAccount(querier.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	return account, nil
}

func (r *accountRepository) AdjustBalanceTx(ctx context.Context, querier domain.Querier, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = $2
		WHERE id = $3 AND balance + $1 >= 0
		RETURNING ` + accountColumns
	account, err := scanAccount(querier.QueryRowContext(ctx, query, delta, time.Now(), accountID))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update account balance for %s: %w", accountID, err)
	}

	if _, getErr := r.GetAccountTx(ctx, querier, accountID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrInsufficientFunds
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.CustomerID,
		&account.Balance,
		&account.TariffType,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}
