package purchaseorders_http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"purchaseorders/internal/app/purchaseorders"
	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type PurchaseOrderHandler struct {
	service purchaseorders.PurchaseOrderService
	logger  *zap.Logger
}

func NewPurchaseOrderHandler(s purchaseorders.PurchaseOrderService, l *zap.Logger) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{service: s, logger: l}
}

type ErrorRecordResponse struct {
	ID         string    `json:"id"`
	Code       int       `json:"code"`
	Message    string    `json:"message"`
	AccountID  string    `json:"accountId,omitempty"`
	PackageID  int64     `json:"subPackageId,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

func (h *PurchaseOrderHandler) SendPurchaseOrderHandler(w http.ResponseWriter, r *http.Request) {
	var order envelope.PurchaseOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		h.logger.Warn("Invalid request body for purchase order", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	purchase, err := h.service.PlaceOrder(r.Context(), order, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		status, message := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Purchase order failed", zap.String("account_id", order.AccountID), zap.Int("status", status), zap.Error(err))
		}
		http.Error(w, message, status)
		return
	}

	writeJSON(w, http.StatusCreated, purchase, h.logger)
}

// statusFor maps a purchase order failure onto an HTTP status and the body shown to
// the caller.
func statusFor(err error) (int, string) {
	if replyErr, ok := envelope.AsReplyError(err); ok {
		switch replyErr.Kind {
		case envelope.KindNotFound:
			return http.StatusNotFound, replyErr.Error()
		case envelope.KindInsufficientFunds:
			return http.StatusPaymentRequired, replyErr.Error()
		case envelope.KindNotPossible:
			return http.StatusForbidden, replyErr.Error()
		default:
			return http.StatusBadGateway, "Undefined exception"
		}
	}
	switch {
	case errors.Is(err, envelope.ErrInvalidOrder):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, envelope.ErrTimeout):
		return http.StatusGatewayTimeout, "Purchase order timed out"
	case errors.Is(err, envelope.ErrTransport):
		return http.StatusServiceUnavailable, "Purchase order could not be delivered"
	case errors.Is(err, context.Canceled):
		return 499, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *PurchaseOrderHandler) GetErrorRecordsHandler(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.service.ListErrorRecords(r.Context(), after, limit)
	if err != nil {
		h.logger.Error("Failed to list error records", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toErrorRecordResponses(entries), h.logger)
}

func toErrorRecordResponses(entries []domain.ErrorAuditEntry) []ErrorRecordResponse {
	resp := make([]ErrorRecordResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ErrorRecordResponse{
			ID:         e.ID,
			Code:       e.Code,
			Message:    e.Message,
			AccountID:  e.AccountID,
			PackageID:  e.PackageID,
			RecordedAt: e.RecordedAt,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
