package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type stubCheckout struct {
	input  services.CheckoutInput
	result *services.CheckoutResult
	err    error
	totals services.Totals
	dest   carrier.Destination
	lines  []services.CheckoutLine
}

func (s *stubCheckout) Checkout(_ context.Context, input services.CheckoutInput) (*services.CheckoutResult, error) {
	s.input = input
	return s.result, s.err
}

func (s *stubCheckout) Quote(_ context.Context, dest carrier.Destination, lines []services.CheckoutLine) (services.Totals, error) {
	s.dest = dest
	s.lines = lines
	return s.totals, s.err
}

type stubPayments struct {
	source string
	values url.Values
	result *services.CallbackResult
	err    error
}

func (s *stubPayments) HandleCallback(_ context.Context, source string, values url.Values) (*services.CallbackResult, error) {
	s.source = source
	s.values = values
	return s.result, s.err
}

type stubOrders struct {
	order       *models.Order
	err         error
	retry       *services.RetryPaymentResult
	retryErr    error
	retried     bool
	cancelEmail string
	cancelErr   error
}

func (s *stubOrders) Get(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.order == nil || s.order.ID != orderID {
		return nil, services.ErrNotFound
	}
	return s.order, nil
}

func (s *stubOrders) RetryPayment(_ context.Context, _ uuid.UUID, _ string) (*services.RetryPaymentResult, error) {
	s.retried = true
	return s.retry, s.retryErr
}

func (s *stubOrders) CancelForCustomer(_ context.Context, _ uuid.UUID, email string) (*models.Order, error) {
	s.cancelEmail = email
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	cancelled := *s.order
	cancelled.State = models.StateCancelled
	return &cancelled, nil
}

type stubAdmin struct {
	query     services.AdminListQuery
	list      *services.AdminListResult
	order     *models.Order
	err       error
	status    models.PaymentStatus
	syncMoved bool
}

func (s *stubAdmin) List(_ context.Context, query services.AdminListQuery) (*services.AdminListResult, error) {
	s.query = query
	return s.list, s.err
}

func (s *stubAdmin) Detail(_ context.Context, _ uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubAdmin) Approve(_ context.Context, _ uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubAdmin) Cancel(_ context.Context, _ uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubAdmin) SetPaymentStatus(_ context.Context, _ uuid.UUID, status models.PaymentStatus) (*models.Order, error) {
	s.status = status
	return s.order, s.err
}

func (s *stubAdmin) Sync(_ context.Context, _ uuid.UUID) (*models.Order, bool, error) {
	return s.order, s.syncMoved, s.err
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

type testDeps struct {
	checkout *stubCheckout
	payments *stubPayments
	orders   *stubOrders
	admin    *stubAdmin
}

func newTestHandlers(t *testing.T) (*Handlers, *testDeps) {
	t.Helper()

	productCatalog, err := catalog.New(&catalog.File{
		Shop: catalog.ShopConfig{Name: "Tea House", Currency: "vnd"},
		Products: []catalog.Product{
			{ID: "tea", Name: "Green tea", Price: 100, Weight: 300, Active: true},
			{ID: "cup", Name: "Cup", Price: 45000, Active: true},
		},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	deps := &testDeps{
		checkout: &stubCheckout{},
		payments: &stubPayments{},
		orders:   &stubOrders{},
		admin:    &stubAdmin{},
	}

	h, err := New(Dependencies{
		Config:          &config.Config{BaseURL: "https://shop.example", AdminAPIToken: "admin-token-0123456789"},
		Health:          stubPinger{},
		Catalog:         productCatalog,
		CheckoutService: deps.checkout,
		PaymentService:  deps.payments,
		OrderService:    deps.orders,
		AdminService:    deps.admin,
		SessionManager:  session.NewManager(session.NewMemoryStore(), false),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	return h, deps
}

func withSession(r *http.Request, data *session.Data) *http.Request {
	return r.WithContext(session.WithSession(r.Context(), uuid.NewString(), data))
}

func testOrder(method models.PaymentMethod, state models.OrderState) *models.Order {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &models.Order{
		ID: uuid.New(),
		Recipient: models.Recipient{
			Name:       "Nguyen Van A",
			Phone:      "0900000000",
			Email:      "buyer@example.com",
			Address:    "1 Le Loi",
			ProvinceID: 202,
			DistrictID: 1442,
			WardCode:   "20101",
		},
		Items: []models.LineItem{
			{ProductID: "tea", Name: "Green tea", Quantity: 2, UnitPrice: 100, UnitWeight: 300},
		},
		ShippingFee:   30,
		PaymentMethod: method,
		PaymentStatus: models.PaymentUnpaid,
		TxnRef:        "ref-1",
		State:         state,
		StatusHistory: []models.StatusEntry{{Status: models.HistoryReadyToPick, At: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
