package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// carrier calls during checkout and approve can take a while
		WriteTimeout:   45 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET").Name("metrics")

	// 404 handler - must be last
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// Gateway callbacks carry no session or origin; they are verified by signature.
	r.HandleFunc("/payments/ipn", h.PaymentIPN).Methods("GET", "POST").Name("payments.ipn")

	shop := r.NewRoute().Subrouter()
	shop.Use(h.SessionMiddleware)
	shop.Use(h.RequireSameOrigin)
	shop.HandleFunc("/cart", h.Cart).Methods("GET").Name("cart")
	shop.HandleFunc("/cart/items", h.AddCartItem).Methods("POST").Name("cart.items.add")
	shop.HandleFunc("/shipping/fee", h.ShippingFee).Methods("GET").Name("shipping.fee")
	shop.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("checkout")
	shop.HandleFunc("/checkout/success", h.CheckoutSuccess).Methods("GET").Name("checkout.success")
	shop.HandleFunc("/payments/return", h.PaymentReturn).Methods("GET").Name("payments.return")
	shop.HandleFunc("/orders/{id}/retry-payment", h.RetryPayment).Methods("POST").Name("orders.retry_payment")
	shop.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST").Name("orders.cancel")

	// Admin API - bearer token
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.RequireAdminToken)
	adminRouter.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/{id}", h.AdminOrderDetail).Methods("GET").Name("admin.orders.detail")
	adminRouter.HandleFunc("/orders/{id}/approve", h.AdminApproveOrder).Methods("POST").Name("admin.orders.approve")
	adminRouter.HandleFunc("/orders/{id}/cancel", h.AdminCancelOrder).Methods("POST").Name("admin.orders.cancel")
	adminRouter.HandleFunc("/orders/{id}/payment-status", h.AdminSetPaymentStatus).Methods("POST").Name("admin.orders.payment_status")
	adminRouter.HandleFunc("/orders/{id}/sync", h.AdminSyncOrder).Methods("POST").Name("admin.orders.sync")

	return r
}
