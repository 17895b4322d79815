package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	HeaderCorrelationID  = "kafka_correlationId"
	HeaderReplyTopic     = "kafka_replyTopic"
	HeaderIdempotencyKey = "idempotency_key"
)

var (
	ErrMissingCorrelationID = errors.New("message has no correlation id")
	ErrMissingReplyTopic    = errors.New("request has no reply topic")
	ErrEmptyReply           = errors.New("reply carries neither a purchase nor an error")
	ErrInvalidOrder         = errors.New("invalid purchase order")
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// PurchaseOrder is the body of a request envelope.
type PurchaseOrder struct {
	AccountID string          `json:"accountId"`
	PackageID int64           `json:"subPackageId"`
	Price     decimal.Decimal `json:"packagePrice"`
}

func (o PurchaseOrder) Validate() error {
	if o.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidOrder)
	}
	if o.PackageID < 1 {
		return fmt.Errorf("%w: package id must be positive", ErrInvalidOrder)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("%w: package price cannot be negative", ErrInvalidOrder)
	}
	return nil
}

type PackageView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PackageType string `json:"packageType"`
	Duration    int64  `json:"duration"`
	Purchasable bool   `json:"purchasable"`
}

// PurchaseView is the projection of a created purchase returned to the caller.
type PurchaseView struct {
	ID           string          `json:"id"`
	PurchaseDate time.Time       `json:"purchaseDate"`
	AccountID    string          `json:"accountId"`
	Price        decimal.Decimal `json:"packagePrice"`
	Package      PackageView     `json:"subPackage"`
}

type RequestEnvelope struct {
	CorrelationID  string
	ReplyTopic     string
	IdempotencyKey string
	Order          PurchaseOrder
}

type ReplyEnvelope struct {
	CorrelationID string
	Purchase      *PurchaseView
	Error         *ErrorRecord
}

type replyBody struct {
	Purchase *PurchaseView `json:"purchase,omitempty"`
	Error    *ErrorRecord  `json:"error,omitempty"`
}

// Result returns the purchase, or the decoded business error.
func (r ReplyEnvelope) Result() (*PurchaseView, error) {
	if r.Error != nil {
		return nil, r.Error.Err()
	}
	if r.Purchase == nil {
		return nil, ErrorRecord{Code: CodeInternal, Message: ErrEmptyReply.Error()}.Err()
	}
	return r.Purchase, nil
}

// EncodeRequest builds the Kafka message for a request. Messages are keyed by account
// so orders for the same account share a partition.
func EncodeRequest(topic string, req RequestEnvelope) (kafka.Message, error) {
	if req.CorrelationID == "" {
		return kafka.Message{}, ErrMissingCorrelationID
	}
	if req.ReplyTopic == "" {
		return kafka.Message{}, ErrMissingReplyTopic
	}
	value, err := json.Marshal(req.Order)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal purchase order: %w", err)
	}
	headers := []kafka.Header{
		{Key: HeaderCorrelationID, Value: []byte(req.CorrelationID)},
		{Key: HeaderReplyTopic, Value: []byte(req.ReplyTopic)},
	}
	if req.IdempotencyKey != "" {
		headers = append(headers, kafka.Header{Key: HeaderIdempotencyKey, Value: []byte(req.IdempotencyKey)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(req.Order.AccountID),
		Value:   value,
		Headers: headers,
	}, nil
}

// DecodeRequest reads a request envelope. The idempotency key falls back to the
// correlation id when the sender did not set one.
func DecodeRequest(msg kafka.Message) (RequestEnvelope, error) {
	req := RequestEnvelope{
		CorrelationID:  Header(msg, HeaderCorrelationID),
		ReplyTopic:     Header(msg, HeaderReplyTopic),
		IdempotencyKey: Header(msg, HeaderIdempotencyKey),
	}
	if req.CorrelationID == "" {
		return req, ErrMissingCorrelationID
	}
	if req.ReplyTopic == "" {
		return req, ErrMissingReplyTopic
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = req.CorrelationID
	}
	if err := json.Unmarshal(msg.Value, &req.Order); err != nil {
		return req, fmt.Errorf("failed to unmarshal purchase order: %w", err)
	}
	return req, nil
}

func EncodeReply(topic string, reply ReplyEnvelope) (kafka.Message, error) {
	if reply.CorrelationID == "" {
		return kafka.Message{}, ErrMissingCorrelationID
	}
	if reply.Purchase == nil && reply.Error == nil {
		return kafka.Message{}, ErrEmptyReply
	}
	value, err := json.Marshal(replyBody{Purchase: reply.Purchase, Error: reply.Error})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal reply: %w", err)
	}
	return kafka.Message{
		Topic:   topic,
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderCorrelationID, Value: []byte(reply.CorrelationID)}},
	}, nil
}

func DecodeReply(msg kafka.Message) (ReplyEnvelope, error) {
	reply := ReplyEnvelope{CorrelationID: Header(msg, HeaderCorrelationID)}
	if reply.CorrelationID == "" {
		return reply, ErrMissingCorrelationID
	}
	var body replyBody
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return reply, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	if body.Purchase == nil && body.Error == nil {
		return reply, ErrEmptyReply
	}
	reply.Purchase = body.Purchase
	reply.Error = body.Error
	return reply, nil
}

// Header returns the last value of the named header, or "".
func Header(msg kafka.Message, key string) string {
	value := ""
	for _, h := range msg.Headers {
		if h.Key == key {
			value = string(h.Value)
		}
	}
	return value
}
