package ledger_http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"purchaseorders/internal/app/purchases"
	"purchaseorders/internal/domain"
)

type LedgerHandler struct {
	service purchases.PurchaseService
	logger  *zap.Logger
}

func NewLedgerHandler(s purchases.PurchaseService, l *zap.Logger) *LedgerHandler {
	return &LedgerHandler{service: s, logger: l}
}

type CreateCustomerRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

type CustomerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"creationDate"`
}

type CreateAccountRequest struct {
	ID         string          `json:"id,omitempty"`
	CustomerID string          `json:"customerId"`
	Balance    decimal.Decimal `json:"accountBalance"`
	TariffType string          `json:"tariffType"`
}

type AccountResponse struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	Balance    decimal.Decimal `json:"accountBalance"`
	TariffType string          `json:"tariffType"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type CreatePackageRequest struct {
	Name        string `json:"name"`
	PackageType string `json:"packageType"`
	Duration    int64  `json:"duration"`
	Purchasable *bool  `json:"purchasable"`
}

type UpdatePackageRequest struct {
	Purchasable *bool `json:"purchasable"`
}

type PackageResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PackageType string `json:"packageType"`
	Duration    int64  `json:"duration"`
	Purchasable bool   `json:"purchasable"`
}

func (h *LedgerHandler) CreateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateCustomer", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	customer, err := h.service.CreateCustomer(r.Context(), purchases.CreateCustomerInput{
		ID:      req.ID,
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(customer), h.logger)
}

func (h *LedgerHandler) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := h.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(customer), h.logger)
}

func (h *LedgerHandler) ListCustomerAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListCustomerAccounts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		resp = append(resp, toAccountResponse(&accounts[i]))
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

func (h *LedgerHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreateAccount", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), purchases.CreateAccountInput{
		ID:         req.ID,
		CustomerID: req.CustomerID,
		Balance:    req.Balance,
		TariffType: domain.TariffType(req.TariffType),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account), h.logger)
}

func (h *LedgerHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account), h.logger)
}

func (h *LedgerHandler) ListAccountPurchasesHandler(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListAccountPurchases(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views, h.logger)
}

func (h *LedgerHandler) CreatePackageHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for CreatePackage", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	purchasable := true
	if req.Purchasable != nil {
		purchasable = *req.Purchasable
	}

	pkg, err := h.service.CreatePackage(r.Context(), purchases.CreatePackageInput{
		Name:        req.Name,
		Type:        domain.PackageType(req.PackageType),
		Duration:    req.Duration,
		Purchasable: purchasable,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageResponse(pkg), h.logger)
}

func (h *LedgerHandler) GetPackageHandler(w http.ResponseWriter, r *http.Request) {
	packageID, ok := parsePackageID(w, r)
	if !ok {
		return
	}
	pkg, err := h.service.GetPackage(r.Context(), packageID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageResponse(pkg), h.logger)
}

func (h *LedgerHandler) UpdatePackageHandler(w http.ResponseWriter, r *http.Request) {
	packageID, ok := parsePackageID(w, r)
	if !ok {
		return
	}
	var req UpdatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Purchasable == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	pkg, err := h.service.SetPackagePurchasable(r.Context(), packageID, *req.Purchasable)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageResponse(pkg), h.logger)
}

func (h *LedgerHandler) GetPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetPurchase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view, h.logger)
}

func (h *LedgerHandler) DeletePurchaseHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePurchase(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePackageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	packageID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid package id format", http.StatusBadRequest)
		return 0, false
	}
	return packageID, true
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, purchases.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrCustomerNotFound):
		http.Error(w, "Customer not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrAccountNotFound):
		http.Error(w, "Account not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPackageNotFound):
		http.Error(w, "Package not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPurchaseNotFound):
		http.Error(w, "Purchase not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		http.Error(w, "Account already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrCustomerAlreadyExists):
		http.Error(w, "Customer already exists", http.StatusConflict)
	default:
		h.logger.Error("Ledger request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func toCustomerResponse(c *domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Surname:   c.Surname,
		Email:     c.Email,
		CreatedAt: c.CreatedAt,
	}
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		Balance:    a.Balance,
		TariffType: string(a.TariffType),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

func toPackageResponse(p *domain.Package) PackageResponse {
	return PackageResponse{
		ID:          p.ID,
		Name:        p.Name,
		PackageType: string(p.Type),
		Duration:    p.Duration,
		Purchasable: p.Purchasable,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
