package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregatePurchase        = "purchase"
	MessagePurchaseConfirmed = "purchase.confirmed"
)

// PurchaseConfirmedEvent is published on the notification topic for every committed
// purchase.
type PurchaseConfirmedEvent struct {
	PurchaseID   string          `json:"purchase_id"`
	AccountID    string          `json:"account_id"`
	PackageID    int64           `json:"package_id"`
	PackageName  string          `json:"package_name"`
	Price        decimal.Decimal `json:"price"`
	PurchaseDate time.Time       `json:"purchase_date"`
}
