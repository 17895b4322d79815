package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrPurchaseNotFound = errors.New("purchase not found")

type Purchase struct {
	ID           string
	AccountID    string
	PackageID    int64
	Price        decimal.Decimal
	PurchaseDate time.Time
}
