// Package memory keeps the ledger in process memory. It backs the core service when
// no PostgreSQL is configured and the executor tests.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"purchaseorders/internal/domain"
	"purchaseorders/internal/repository/inbox_repo"
)

var errNoSQL = errors.New("memory store does not execute SQL")

// Store holds every table. Transactions are serialized and a failed transaction
// restores the snapshot taken when it began.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	customers   map[string]domain.Customer
	accounts    map[string]domain.Account
	packages    map[int64]domain.Package
	purchases   map[string]domain.Purchase
	inbox       map[string]domain.InboxMessage
	outbox      map[string]domain.OutboxMessage
	nextPackage int64
}

func NewStore() *Store {
	return &Store{
		customers: make(map[string]domain.Customer),
		accounts:  make(map[string]domain.Account),
		packages:  make(map[int64]domain.Package),
		purchases: make(map[string]domain.Purchase),
		inbox:     make(map[string]domain.InboxMessage),
		outbox:    make(map[string]domain.OutboxMessage),
	}
}

type snapshot struct {
	customers   map[string]domain.Customer
	accounts    map[string]domain.Account
	packages    map[int64]domain.Package
	purchases   map[string]domain.Purchase
	inbox       map[string]domain.InboxMessage
	outbox      map[string]domain.OutboxMessage
	nextPackage int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		customers:   maps.Clone(s.customers),
		accounts:    maps.Clone(s.accounts),
		packages:    maps.Clone(s.packages),
		purchases:   maps.Clone(s.purchases),
		inbox:       maps.Clone(s.inbox),
		outbox:      maps.Clone(s.outbox),
		nextPackage: s.nextPackage,
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = snap.customers
	s.accounts = snap.accounts
	s.packages = snap.packages
	s.purchases = snap.purchases
	s.inbox = snap.inbox
	s.outbox = snap.outbox
	s.nextPackage = snap.nextPackage
}

// WithinTx runs fn under the store's transaction lock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, q domain.Querier) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			panic(r)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, txQuerier{})
}

func (s *Store) Querier() domain.Querier {
	return Querier{}
}

// Querier satisfies domain.Querier for the memory repositories. Writes through a plain
// Querier run as their own transaction.
type Querier struct{}

// txQuerier is handed to the function run by WithinTx.
type txQuerier struct{ Querier }

// autocommit makes a write outside WithinTx wait for the running transaction, so that
// transaction's rollback cannot discard it.
func (s *Store) autocommit(q domain.Querier) func() {
	if _, ok := q.(txQuerier); ok {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (Querier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (Querier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (Querier) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

type CustomerRepository struct{ s *Store }

func (s *Store) Customers() *CustomerRepository { return &CustomerRepository{s: s} }

func (r *CustomerRepository) CreateCustomerTx(_ context.Context, q domain.Querier, customer *domain.Customer) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[customer.ID]; ok {
		return domain.ErrCustomerAlreadyExists
	}
	for _, c := range r.s.customers {
		if c.Email == customer.Email {
			return domain.ErrCustomerAlreadyExists
		}
	}
	r.s.customers[customer.ID] = *customer
	return nil
}

func (r *CustomerRepository) GetCustomerTx(_ context.Context, _ domain.Querier, customerID string) (*domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	customer, ok := r.s.customers[customerID]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &customer, nil
}

type AccountRepository struct{ s *Store }

func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

func (r *AccountRepository) CreateAccountTx(_ context.Context, q domain.Querier, account *domain.Account) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[account.ID]; ok {
		return domain.ErrAccountAlreadyExists
	}
	r.s.accounts[account.ID] = *account
	return nil
}

func (r *AccountRepository) GetAccountTx(_ context.Context, _ domain.Querier, accountID string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	account, ok := r.s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (r *AccountRepository) GetAccountForUpdateTx(ctx context.Context, q domain.Querier, accountID string) (*domain.Account, error) {
	return r.GetAccountTx(ctx, q, accountID)
}

func (r *AccountRepository) AdjustBalanceTx(_ context.Context, q domain.Querier, accountID string, delta decimal.Decimal) (*domain.Account, error) {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	account, ok := r.s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	balance := account.Balance.Add(delta)
	if balance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}
	account.Balance = balance
	account.UpdatedAt = time.Now()
	r.s.accounts[accountID] = account
	return &account, nil
}

func (r *AccountRepository) ListByCustomerTx(_ context.Context, _ domain.Querier, customerID string) ([]domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var accounts []domain.Account
	for _, a := range r.s.accounts {
		if a.CustomerID == customerID {
			accounts = append(accounts, a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

type PackageRepository struct{ s *Store }

func (s *Store) Packages() *PackageRepository { return &PackageRepository{s: s} }

func (r *PackageRepository) CreatePackageTx(_ context.Context, q domain.Querier, pkg *domain.Package) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextPackage++
	pkg.ID = r.s.nextPackage
	r.s.packages[pkg.ID] = *pkg
	return nil
}

func (r *PackageRepository) GetPackageTx(_ context.Context, _ domain.Querier, packageID int64) (*domain.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pkg, ok := r.s.packages[packageID]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return &pkg, nil
}

func (r *PackageRepository) SetPurchasableTx(_ context.Context, q domain.Querier, packageID int64, purchasable bool) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pkg, ok := r.s.packages[packageID]
	if !ok {
		return domain.ErrPackageNotFound
	}
	pkg.Purchasable = purchasable
	r.s.packages[packageID] = pkg
	return nil
}

type PurchaseRepository struct{ s *Store }

func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s: s} }

func (r *PurchaseRepository) CreateTx(_ context.Context, q domain.Querier, purchase *domain.Purchase) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[purchase.AccountID]; !ok {
		return domain.ErrAccountNotFound
	}
	if _, ok := r.s.packages[purchase.PackageID]; !ok {
		return domain.ErrPackageNotFound
	}
	r.s.purchases[purchase.ID] = *purchase
	return nil
}

func (r *PurchaseRepository) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	purchase, ok := r.s.purchases[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	return &purchase, nil
}

func (r *PurchaseRepository) GetByIDForUpdateTx(ctx context.Context, q domain.Querier, id string) (*domain.Purchase, error) {
	return r.GetByIDTx(ctx, q, id)
}

func (r *PurchaseRepository) ListByAccountTx(_ context.Context, _ domain.Querier, accountID string) ([]domain.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var purchases []domain.Purchase
	for _, p := range r.s.purchases {
		if p.AccountID == accountID {
			purchases = append(purchases, p)
		}
	}
	sort.Slice(purchases, func(i, j int) bool {
		return purchases[i].PurchaseDate.Before(purchases[j].PurchaseDate)
	})
	return purchases, nil
}

func (r *PurchaseRepository) DeleteTx(_ context.Context, q domain.Querier, id string) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.purchases[id]; !ok {
		return domain.ErrPurchaseNotFound
	}
	delete(r.s.purchases, id)
	return nil
}

// Count reports how many purchases are stored.
func (r *PurchaseRepository) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.purchases)
}

type InboxRepository struct{ s *Store }

func (s *Store) Inbox() *InboxRepository { return &InboxRepository{s: s} }

func (r *InboxRepository) CreateMessageTx(_ context.Context, q domain.Querier, msg *domain.InboxMessage) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.inbox[msg.IdempotencyKey]; ok {
		return domain.ErrRequestAlreadyProcessed
	}
	r.s.inbox[msg.IdempotencyKey] = *msg
	return nil
}

func (r *InboxRepository) GetMessageByKeyTx(_ context.Context, _ domain.Querier, idempotencyKey string) (*domain.InboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.inbox[idempotencyKey]
	if !ok {
		return nil, inbox_repo.ErrMessageNotFound
	}
	return &msg, nil
}

type OutboxRepository struct{ s *Store }

func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

func (r *OutboxRepository) CreateMessageTx(_ context.Context, q domain.Querier, msg *domain.OutboxMessage) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.outbox[msg.ID] = *msg
	return nil
}

func (r *OutboxRepository) GetPendingMessages(_ context.Context, _ domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var messages []domain.OutboxMessage
	for _, msg := range r.s.outbox {
		if msg.Pending() {
			messages = append(messages, msg)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (r *OutboxRepository) UpdateMessageStatusTx(_ context.Context, q domain.Querier, id string, status domain.OutboxMessageStatus) error {
	defer r.s.autocommit(q)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg, ok := r.s.outbox[id]
	if !ok {
		return errors.New("outbox message with id " + id + " not found for status update")
	}
	msg.Status = status
	if status == domain.OutboxStatusSent {
		now := time.Now()
		msg.SentAt = &now
	}
	r.s.outbox[id] = msg
	return nil
}

// Messages returns every outbox message regardless of status.
func (r *OutboxRepository) Messages() []domain.OutboxMessage {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return sortedOutbox(r.s.outbox)
}

func sortedOutbox(m map[string]domain.OutboxMessage) []domain.OutboxMessage {
	out := make([]domain.OutboxMessage, 0, len(m))
	for _, msg := range m {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
