package purchaseorders_http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"purchaseorders/internal/domain"
	"purchaseorders/internal/envelope"
)

type fakeService struct {
	purchase *envelope.PurchaseView
	err      error
	entries  []domain.ErrorAuditEntry

	gotOrder envelope.PurchaseOrder
	gotKey   string
	gotAfter string
	gotLimit int64
}

func (f *fakeService) PlaceOrder(_ context.Context, order envelope.PurchaseOrder, key string) (*envelope.PurchaseView, error) {
	f.gotOrder = order
	f.gotKey = key
	return f.purchase, f.err
}

func (f *fakeService) ListErrorRecords(_ context.Context, after string, limit int64) ([]domain.ErrorAuditEntry, error) {
	f.gotAfter = after
	f.gotLimit = limit
	return f.entries, f.err
}

func newServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	router := NewRouter(svc, RouterConfig{Gatherer: prometheus.NewRegistry()}, zaptest.NewLogger(t))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, body string, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/v1/purchase-order", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSendPurchaseOrderCreated(t *testing.T) {
	svc := &fakeService{purchase: &envelope.PurchaseView{
		ID:        "p-1",
		AccountID: "acc-1",
		Price:     decimal.NewFromInt(25),
		Package:   envelope.PackageView{ID: 2, Name: "Combo"},
	}}
	server := newServer(t, svc)

	resp := post(t, server, `{"accountId":"acc-1","subPackageId":2,"packagePrice":25}`, "key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "p-1", body["id"])
	assert.Equal(t, float64(25), body["packagePrice"])
	assert.Equal(t, "Combo", body["subPackage"].(map[string]any)["name"])

	assert.Equal(t, "acc-1", svc.gotOrder.AccountID)
	assert.Equal(t, int64(2), svc.gotOrder.PackageID)
	assert.Equal(t, "key-1", svc.gotKey)
}

func emptyReplyErr() error {
	_, err := envelope.ReplyEnvelope{CorrelationID: "c"}.Result()
	return err
}

func TestSendPurchaseOrderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", envelope.ErrorRecord{Code: 404, Message: "No account found with this id: x"}.Err(), http.StatusNotFound, "No account found with this id: x"},
		{"insufficient funds", envelope.ErrorRecord{Code: 402, Message: "Payment Required."}.Err(), http.StatusPaymentRequired, "Payment Required."},
		{"not possible", envelope.ErrorRecord{Code: 403, Message: "This package can not be purchased at this moment!"}.Err(), http.StatusForbidden, "This package can not be purchased at this moment!"},
		{"undefined", envelope.ErrorRecord{Code: 500, Message: "boom"}.Err(), http.StatusBadGateway, "Undefined exception"},
		{"empty reply", emptyReplyErr(), http.StatusBadGateway, "Undefined exception"},
		{"timeout", fmt.Errorf("%w: correlation id c", envelope.ErrTimeout), http.StatusGatewayTimeout, "Purchase order timed out"},
		{"transport", fmt.Errorf("%w: broker down", envelope.ErrTransport), http.StatusServiceUnavailable, "Purchase order could not be delivered"},
		{"invalid", fmt.Errorf("%w: account id is required", envelope.ErrInvalidOrder), http.StatusBadRequest, "invalid purchase order: account id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, &fakeService{err: tt.err})

			resp := post(t, server, `{"accountId":"acc-1","subPackageId":2,"packagePrice":25}`, "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.body, strings.TrimSpace(readBody(t, resp)))
		})
	}
}

func TestSendPurchaseOrderRejectsBadJSON(t *testing.T) {
	svc := &fakeService{}
	server := newServer(t, svc)

	resp := post(t, server, `{"accountId":`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.gotOrder.AccountID)
}

func TestGetErrorRecords(t *testing.T) {
	recordedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc := &fakeService{entries: []domain.ErrorAuditEntry{
		{ID: "1-0", Code: 402, Message: "Payment Required.", AccountID: "acc-1", PackageID: 2, RecordedAt: recordedAt},
	}}
	server := newServer(t, svc)

	resp, err := http.Get(server.URL + "/v1/purchase-order/errors?after=0-1&limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []ErrorRecordResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "1-0", records[0].ID)
	assert.Equal(t, 402, records[0].Code)
	assert.Equal(t, "Payment Required.", records[0].Message)
	assert.True(t, recordedAt.Equal(records[0].RecordedAt))
	assert.Equal(t, "0-1", svc.gotAfter)
	assert.Equal(t, int64(5), svc.gotLimit)
}

func TestGetErrorRecordsEmptyIsArray(t *testing.T) {
	server := newServer(t, &fakeService{})

	resp, err := http.Get(server.URL + "/v1/purchase-order/errors")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "[]", strings.TrimSpace(readBody(t, resp)))
}

func TestGetErrorRecordsInvalidLimit(t *testing.T) {
	server := newServer(t, &fakeService{})

	resp, err := http.Get(server.URL + "/v1/purchase-order/errors?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	server := newServer(t, &fakeService{})

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
