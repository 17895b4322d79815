package domain

import "time"

type OutboxMessageStatus string

const (
	OutboxStatusPending OutboxMessageStatus = "PENDING"
	OutboxStatusSent    OutboxMessageStatus = "SENT"
	OutboxStatusFailed  OutboxMessageStatus = "FAILED"
)

// OutboxMessage is an event committed together with the state change it describes.
// The outbox processor publishes it to Topic, keyed by Key.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	MessageType   string
	Topic         string
	Key           string
	Payload       []byte
	Status        OutboxMessageStatus
	CreatedAt     time.Time
	SentAt        *time.Time
}

// NewPurchaseOutboxMessage wraps an encoded purchase event. Events of one account share
// a key so they stay ordered on the topic.
func NewPurchaseOutboxMessage(id, topic, messageType string, purchase *Purchase, payload []byte, createdAt time.Time) *OutboxMessage {
	return &OutboxMessage{
		ID:            id,
		AggregateType: AggregatePurchase,
		AggregateID:   purchase.ID,
		MessageType:   messageType,
		Topic:         topic,
		Key:           purchase.AccountID,
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     createdAt,
	}
}

func (m OutboxMessage) Pending() bool {
	return m.Status == OutboxStatusPending
}
