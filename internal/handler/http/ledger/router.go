package ledger_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"purchaseorders/internal/app/purchases"
)

// RegisterRoutes mounts the ledger endpoints of the core service on r.
func RegisterRoutes(r chi.Router, s purchases.PurchaseService, gatherer prometheus.Gatherer, l *zap.Logger) {
	handler := NewLedgerHandler(s, l.With(zap.String("component", "LedgerHTTPHandler")))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Core service is healthy!"))
	})

	r.Route("/v1/customers", func(r chi.Router) {
		r.Post("/", handler.CreateCustomerHandler)
		r.Get("/{id}", handler.GetCustomerHandler)
		r.Get("/{id}/accounts", handler.ListCustomerAccountsHandler)
	})

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Post("/", handler.CreateAccountHandler)
		r.Get("/{id}", handler.GetAccountHandler)
		r.Get("/{id}/purchases", handler.ListAccountPurchasesHandler)
	})

	r.Route("/v1/packages", func(r chi.Router) {
		r.Post("/", handler.CreatePackageHandler)
		r.Get("/{id}", handler.GetPackageHandler)
		r.Patch("/{id}", handler.UpdatePackageHandler)
	})

	r.Route("/v1/purchases", func(r chi.Router) {
		r.Get("/{id}", handler.GetPurchaseHandler)
		r.Delete("/{id}", handler.DeletePurchaseHandler)
	})
}
