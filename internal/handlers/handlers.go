package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

type Pinger interface {
	Ping(ctx context.Context) error
}

type Catalog interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, input services.CheckoutInput) (*services.CheckoutResult, error)
	Quote(ctx context.Context, dest carrier.Destination, lines []services.CheckoutLine) (services.Totals, error)
}

type PaymentService interface {
	HandleCallback(ctx context.Context, source string, values url.Values) (*services.CallbackResult, error)
}

type OrderService interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	RetryPayment(ctx context.Context, orderID uuid.UUID, clientIP string) (*services.RetryPaymentResult, error)
	CancelForCustomer(ctx context.Context, orderID uuid.UUID, customerEmail string) (*models.Order, error)
}

type AdminService interface {
	List(ctx context.Context, query services.AdminListQuery) (*services.AdminListResult, error)
	Detail(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Approve(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (*models.Order, error)
	Sync(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error)
}

var (
	_ Catalog         = (*catalog.Catalog)(nil)
	_ CheckoutService = (*services.CheckoutService)(nil)
	_ PaymentService  = (*services.PaymentService)(nil)
	_ OrderService    = (*services.OrderService)(nil)
	_ AdminService    = (*services.AdminService)(nil)
)

// Handlers provides HTTP request handlers for the storefront, the payment
// gateway callbacks, and the admin order API.
type Handlers struct {
	config          *config.Config
	health          Pinger
	catalog         Catalog
	checkoutService CheckoutService
	paymentService  PaymentService
	orderService    OrderService
	adminService    AdminService
	sessionManager  *session.Manager
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	Health          Pinger
	Catalog         Catalog
	CheckoutService CheckoutService
	PaymentService  PaymentService
	OrderService    OrderService
	AdminService    AdminService
	SessionManager  *session.Manager
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("handlers dependencies: health is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("handlers dependencies: catalog is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.AdminService == nil {
		return nil, fmt.Errorf("handlers dependencies: adminService is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}

	return &Handlers{
		config:          deps.Config,
		health:          deps.Health,
		catalog:         deps.Catalog,
		checkoutService: deps.CheckoutService,
		paymentService:  deps.PaymentService,
		orderService:    deps.OrderService,
		adminService:    deps.AdminService,
		sessionManager:  deps.SessionManager,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.health.Ping(ctx); err != nil {
		logger.Error("order store health check failed", "error", err)
		http.Error(w, "Order store unhealthy", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// SessionMiddleware adds session data to the request context
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// requestValues reads a form or a flat JSON object into url.Values.
func requestValues(r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.Form, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	values := url.Values{}
	for key, value := range raw {
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				values.Add(key, fmt.Sprint(item))
			}
		case nil:
		case float64:
			values.Set(key, formatNumber(v))
		default:
			values.Set(key, fmt.Sprint(v))
		}
	}
	return values, nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprint(v)
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
