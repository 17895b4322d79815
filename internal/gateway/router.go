package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Config struct {
	PurchaseOrderServiceURL string
	CoreServiceURL          string
	AllowedOrigins          []string
	// RequestTimeout should exceed the purchase order reply timeout, otherwise the
	// gateway gives up before the edge service answers.
	RequestTimeout time.Duration
}

// NewRouter fronts the edge service and the core ledger with one origin.
func NewRouter(cfg Config, logger *zap.Logger) (http.Handler, error) {
	purchaseOrderURL, err := url.Parse(cfg.PurchaseOrderServiceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Purchase Order Service URL (%s): %w", cfg.PurchaseOrderServiceURL, err)
	}
	coreURL, err := url.Parse(cfg.CoreServiceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Core Service URL (%s): %w", cfg.CoreServiceURL, err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		MaxAge:         300,
	}))

	purchaseOrderProxy := createProxy(purchaseOrderURL, logger.With(zap.String("upstream", "purchase-order")))
	coreProxy := createProxy(coreURL, logger.With(zap.String("upstream", "core")))

	r.Route("/v1/purchase-order", func(r chi.Router) {
		r.Post("/", purchaseOrderProxy.ServeHTTP)
		r.Get("/errors", purchaseOrderProxy.ServeHTTP)
	})

	r.Route("/v1/customers", func(r chi.Router) {
		r.Post("/", coreProxy.ServeHTTP)
		r.Get("/{id}", coreProxy.ServeHTTP)
		r.Get("/{id}/accounts", coreProxy.ServeHTTP)
	})

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Post("/", coreProxy.ServeHTTP)
		r.Get("/{id}", coreProxy.ServeHTTP)
		r.Get("/{id}/purchases", coreProxy.ServeHTTP)
	})

	r.Route("/v1/packages", func(r chi.Router) {
		r.Post("/", coreProxy.ServeHTTP)
		r.Get("/{id}", coreProxy.ServeHTTP)
		r.Patch("/{id}", coreProxy.ServeHTTP)
	})

	r.Route("/v1/purchases", func(r chi.Router) {
		r.Get("/{id}", coreProxy.ServeHTTP)
		r.Delete("/{id}", coreProxy.ServeHTTP)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Gateway is up!"))
	})

	return r, nil
}

func createProxy(target *url.URL, logger *zap.Logger) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(target)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		if id := middleware.GetReqID(req.Context()); id != "" {
			req.Header.Set(middleware.RequestIDHeader, id)
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("Proxy error",
			zap.String("path", r.URL.Path),
			zap.String("target", target.String()),
			zap.Error(err),
		)

		var netErr net.Error
		switch {
		case os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
			renderJSONError(w, "Gateway Timeout", http.StatusGatewayTimeout)
		case errors.As(err, &netErr):
			renderJSONError(w, "Service Unavailable", http.StatusServiceUnavailable)
		default:
			renderJSONError(w, "Bad Gateway", http.StatusBadGateway)
		}
	}

	return proxy
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func renderJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: message, Code: statusCode})
}
