package purchases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
	"purchaseorders/internal/repository/accounts_repo"
	"purchaseorders/internal/repository/customers_repo"
	"purchaseorders/internal/repository/inbox_repo"
	"purchaseorders/internal/repository/outbox_repo"
	"purchaseorders/internal/repository/packages_repo"
	"purchaseorders/internal/repository/purchases_repo"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, q domain.Querier) error) error
	Querier() domain.Querier
}

type PurchaseService interface {
	ProcessPurchaseOrder(ctx context.Context, req envelope.RequestEnvelope) (*envelope.PurchaseView, error)
	GetPurchase(ctx context.Context, purchaseID string) (*envelope.PurchaseView, error)
	ListAccountPurchases(ctx context.Context, accountID string) ([]envelope.PurchaseView, error)
	DeletePurchase(ctx context.Context, purchaseID string) error

	CreateCustomer(ctx context.Context, input CreateCustomerInput) (*domain.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	ListCustomerAccounts(ctx context.Context, customerID string) ([]domain.Account, error)
	CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error)
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	CreatePackage(ctx context.Context, input CreatePackageInput) (*domain.Package, error)
	GetPackage(ctx context.Context, packageID int64) (*domain.Package, error)
	SetPackagePurchasable(ctx context.Context, packageID int64, purchasable bool) (*domain.Package, error)
}

type Repositories struct {
	Customers customers_repo.CustomerRepository
	Accounts  accounts_repo.AccountRepository
	Packages  packages_repo.PackageRepository
	Purchases purchases_repo.PurchaseRepository
	Inbox     inbox_repo.InboxRepository
	Outbox    outbox_repo.OutboxRepository
}

type Option func(*purchaseService)

func WithClock(now func() time.Time) Option {
	return func(s *purchaseService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *purchaseService) { s.newID = newID }
}

type purchaseService struct {
	tx                Transactor
	repos             Repositories
	notificationTopic string
	logger            *zap.Logger
	now               func() time.Time
	newID             func() string
}

func NewPurchaseService(tx Transactor, repos Repositories, notificationTopic string, logger *zap.Logger, opts ...Option) PurchaseService {
	s := &purchaseService{
		tx:                tx,
		repos:             repos,
		notificationTopic: notificationTopic,
		logger:            logger,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type state string

const (
	stateReceived   state = "RECEIVED"
	stateValidating state = "VALIDATING"
	stateDebiting   state = "DEBITING"
	statePersisted  state = "PERSISTED"
	stateRejected   state = "REJECTED"
	stateDuplicate  state = "DUPLICATE"
)

func (s *purchaseService) ProcessPurchaseOrder(ctx context.Context, req envelope.RequestEnvelope) (*envelope.PurchaseView, error) {
	log := s.logger.With(
		zap.String("correlation_id", req.CorrelationID),
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("account_id", req.Order.AccountID),
		zap.Int64("package_id", req.Order.PackageID),
	)
	log.Info("Purchase order state", zap.String("state", string(stateReceived)))

	var view *envelope.PurchaseView
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		var err error
		view, err = s.processPurchaseOrderTx(ctx, q, req, log)
		return err
	})
	if errors.Is(err, domain.ErrRequestAlreadyProcessed) {
		// A concurrent delivery of the same request committed first.
		log.Info("Purchase order state", zap.String("state", string(stateDuplicate)))
		return s.replay(ctx, s.tx.Querier(), req.IdempotencyKey, req.Order)
	}
	if err != nil {
		var rejection *domain.RejectionError
		if errors.As(err, &rejection) {
			log.Info("Purchase order state", zap.String("state", string(stateRejected)), zap.String("reason", rejection.Message))
			return nil, err
		}
		log.Error("Failed to process purchase order", zap.Error(err))
		return nil, fmt.Errorf("failed to process purchase order: %w", err)
	}
	return view, nil
}

func (s *purchaseService) processPurchaseOrderTx(ctx context.Context, q domain.Querier, req envelope.RequestEnvelope, log *zap.Logger) (*envelope.PurchaseView, error) {
	if req.IdempotencyKey != "" {
		view, err := s.replay(ctx, q, req.IdempotencyKey, req.Order)
		if err == nil {
			log.Info("Purchase order state", zap.String("state", string(stateDuplicate)), zap.String("purchase_id", view.ID))
			return view, nil
		}
		if !errors.Is(err, inbox_repo.ErrMessageNotFound) {
			return nil, err
		}
	}

	log.Info("Purchase order state", zap.String("state", string(stateValidating)))
	order := req.Order
	if err := order.Validate(); err != nil {
		return nil, domain.Reject(domain.ErrPackageNotPurchasable, "%s", err.Error())
	}

	pkg, err := s.repos.Packages.GetPackageTx(ctx, q, order.PackageID)
	if err != nil {
		if errors.Is(err, domain.ErrPackageNotFound) {
			return nil, domain.Reject(err, "No package found with this id: %d", order.PackageID)
		}
		return nil, err
	}
	if !pkg.Purchasable {
		return nil, domain.Reject(domain.ErrPackageNotPurchasable, "This package can not be purchased at this moment!")
	}

	account, err := s.repos.Accounts.GetAccountForUpdateTx(ctx, q, order.AccountID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.Reject(err, "No account found with this id: %s", order.AccountID)
		}
		return nil, err
	}

	log.Info("Purchase order state", zap.String("state", string(stateDebiting)))
	if _, err := account.Debit(order.Price); err != nil {
		return nil, insufficientFunds(pkg, order.Price)
	}
	if _, err := s.repos.Accounts.AdjustBalanceTx(ctx, q, account.ID, order.Price.Neg()); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, insufficientFunds(pkg, order.Price)
		}
		return nil, err
	}

	purchase := &domain.Purchase{
		ID:           s.newID(),
		AccountID:    account.ID,
		PackageID:    pkg.ID,
		Price:        order.Price,
		PurchaseDate: s.now().UTC(),
	}
	if err := s.repos.Purchases.CreateTx(ctx, q, purchase); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		payload, err := json.Marshal(order)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal purchase order for inbox: %w", err)
		}
		err = s.repos.Inbox.CreateMessageTx(ctx, q, &domain.InboxMessage{
			IdempotencyKey: req.IdempotencyKey,
			CorrelationID:  req.CorrelationID,
			PurchaseID:     purchase.ID,
			Payload:        payload,
			ReceivedAt:     s.now().UTC(),
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.enqueueNotification(ctx, q, purchase, pkg); err != nil {
		return nil, err
	}

	log.Info("Purchase order state",
		zap.String("state", string(statePersisted)),
		zap.String("purchase_id", purchase.ID),
		zap.String("price", purchase.Price.String()))
	view := toView(purchase, pkg)
	return &view, nil
}

func insufficientFunds(pkg *domain.Package, price decimal.Decimal) error {
	return domain.Reject(domain.ErrInsufficientFunds,
		"Insufficient account balance to make this purchase: %s with the price of %s. Payment Required.",
		pkg.Name, price.String())
}

// replay returns the purchase recorded for an idempotency key. The key only replays
// the order it was first used with.
func (s *purchaseService) replay(ctx context.Context, q domain.Querier, idempotencyKey string, order envelope.PurchaseOrder) (*envelope.PurchaseView, error) {
	msg, err := s.repos.Inbox.GetMessageByKeyTx(ctx, q, idempotencyKey)
	if err != nil {
		return nil, err
	}
	var recorded envelope.PurchaseOrder
	if err := json.Unmarshal(msg.Payload, &recorded); err != nil {
		return nil, fmt.Errorf("failed to decode inbox payload for key %s: %w", idempotencyKey, err)
	}
	if !sameOrder(recorded, order) {
		return nil, domain.Reject(domain.ErrIdempotencyKeyMismatch, "Idempotency key reused with a different order")
	}
	view, err := s.purchaseView(ctx, q, msg.PurchaseID)
	if errors.Is(err, domain.ErrPurchaseNotFound) {
		return nil, domain.Reject(domain.ErrRequestAlreadyProcessed,
			"This purchase order was already processed and its purchase has been reversed")
	}
	return view, err
}

func sameOrder(a, b envelope.PurchaseOrder) bool {
	return a.AccountID == b.AccountID && a.PackageID == b.PackageID && a.Price.Equal(b.Price)
}

func (s *purchaseService) enqueueNotification(ctx context.Context, q domain.Querier, purchase *domain.Purchase, pkg *domain.Package) error {
	payload, err := json.Marshal(domain.PurchaseConfirmedEvent{
		PurchaseID:   purchase.ID,
		AccountID:    purchase.AccountID,
		PackageID:    pkg.ID,
		PackageName:  pkg.Name,
		Price:        purchase.Price,
		PurchaseDate: purchase.PurchaseDate,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal purchase notification: %w", err)
	}
	msg := domain.NewPurchaseOutboxMessage(s.newID(), s.notificationTopic, domain.MessagePurchaseConfirmed, purchase, payload, s.now().UTC())
	return s.repos.Outbox.CreateMessageTx(ctx, q, msg)
}

func (s *purchaseService) GetPurchase(ctx context.Context, purchaseID string) (*envelope.PurchaseView, error) {
	return s.purchaseView(ctx, s.tx.Querier(), purchaseID)
}

func (s *purchaseService) purchaseView(ctx context.Context, q domain.Querier, purchaseID string) (*envelope.PurchaseView, error) {
	purchase, err := s.repos.Purchases.GetByIDTx(ctx, q, purchaseID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.repos.Packages.GetPackageTx(ctx, q, purchase.PackageID)
	if err != nil {
		return nil, err
	}
	view := toView(purchase, pkg)
	return &view, nil
}

func (s *purchaseService) ListAccountPurchases(ctx context.Context, accountID string) ([]envelope.PurchaseView, error) {
	q := s.tx.Querier()
	if _, err := s.repos.Accounts.GetAccountTx(ctx, q, accountID); err != nil {
		return nil, err
	}
	purchases, err := s.repos.Purchases.ListByAccountTx(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	packages := make(map[int64]*domain.Package)
	views := make([]envelope.PurchaseView, 0, len(purchases))
	for i := range purchases {
		pkg, ok := packages[purchases[i].PackageID]
		if !ok {
			pkg, err = s.repos.Packages.GetPackageTx(ctx, q, purchases[i].PackageID)
			if err != nil {
				return nil, err
			}
			packages[pkg.ID] = pkg
		}
		views = append(views, toView(&purchases[i], pkg))
	}
	return views, nil
}

// DeletePurchase reverses a purchase: the price is credited back and the purchase
// removed in one transaction.
func (s *purchaseService) DeletePurchase(ctx context.Context, purchaseID string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context, q domain.Querier) error {
		purchase, err := s.repos.Purchases.GetByIDForUpdateTx(ctx, q, purchaseID)
		if err != nil {
			return err
		}
		if _, err := s.repos.Accounts.AdjustBalanceTx(ctx, q, purchase.AccountID, purchase.Price); err != nil {
			return fmt.Errorf("failed to credit account %s: %w", purchase.AccountID, err)
		}
		return s.repos.Purchases.DeleteTx(ctx, q, purchaseID)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPurchaseNotFound) {
			s.logger.Error("Failed to reverse purchase", zap.String("purchase_id", purchaseID), zap.Error(err))
		}
		return err
	}
	s.logger.Info("Purchase reversed", zap.String("purchase_id", purchaseID))
	return nil
}

func toView(purchase *domain.Purchase, pkg *domain.Package) envelope.PurchaseView {
	return envelope.PurchaseView{
		ID:           purchase.ID,
		PurchaseDate: purchase.PurchaseDate,
		AccountID:    purchase.AccountID,
		Price:        purchase.Price,
		Package: envelope.PackageView{
			ID:          pkg.ID,
			Name:        pkg.Name,
			PackageType: string(pkg.Type),
			Duration:    pkg.Duration,
			Purchasable: pkg.Purchasable,
		},
	}
}
