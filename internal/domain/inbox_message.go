package domain

import (
	"errors"
	"time"
)

var ErrRequestAlreadyProcessed = errors.New("purchase order already processed")
var ErrIdempotencyKeyMismatch = errors.New("idempotency key reused with a different order")

// InboxMessage records the idempotency key of a purchase order that committed, together
// with the purchase it produced.
type InboxMessage struct {
	IdempotencyKey string
	CorrelationID  string
	PurchaseID     string
	Payload        []byte
	ReceivedAt     time.Time
}
