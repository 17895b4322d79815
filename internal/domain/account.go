package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAccountNotFound = errors.New("account not found")
var ErrAccountAlreadyExists = errors.New("account already exists")
var ErrInsufficientFunds = errors.New("insufficient funds")

type TariffType string

const (
	TariffEconomy  TariffType = "ECONOMY"
	TariffStandard TariffType = "STANDARD"
	TariffPremium  TariffType = "PREMIUM"
)

type Account struct {
	ID         string
	CustomerID string
	Balance    decimal.Decimal
	TariffType TariffType
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Debit returns the balance left after paying price, or ErrInsufficientFunds when the
// balance would go negative.
func (a *Account) Debit(price decimal.Decimal) (decimal.Decimal, error) {
	if a.Balance.LessThan(price) {
		return a.Balance, ErrInsufficientFunds
	}
	return a.Balance.Sub(price), nil
}
