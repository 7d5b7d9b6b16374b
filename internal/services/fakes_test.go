package services

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/crypto"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/gateway"
	"github.com/gitshopapp/storefront/internal/models"
)

const testHashSecret = "SECRETKEY0123456789"

var testNow = time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cloneOrder(order *models.Order) *models.Order {
	c := *order
	c.Items = slices.Clone(order.Items)
	c.PaymentRetries = slices.Clone(order.PaymentRetries)
	c.StatusHistory = slices.Clone(order.StatusHistory)
	return &c
}

// fakeStore applies the same preconditions as the SQL store.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*models.Order
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *fakeStore) put(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
}

func (s *fakeStore) get(id uuid.UUID) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *fakeStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = testNow
	order.UpdatedAt = testNow
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (s *fakeStore) GetByTxnRef(_ context.Context, txnRef string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var retryMatch *models.Order
	for _, order := range s.orders {
		if order.TxnRef == txnRef {
			return cloneOrder(order), nil
		}
		if order.MatchesTxnRef(txnRef) {
			retryMatch = order
		}
	}
	if retryMatch == nil {
		return nil, db.ErrOrderNotFound
	}
	return cloneOrder(retryMatch), nil
}

func (s *fakeStore) GetByShipmentCode(_ context.Context, shipmentCode string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if shipmentCode != "" && order.ShipmentCode == shipmentCode {
			return cloneOrder(order), nil
		}
	}
	return nil, db.ErrOrderNotFound
}

func (s *fakeStore) ListInFlight(_ context.Context, limit int) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, order := range s.orders {
		if order.HasShipment() && slices.Contains(models.InFlightStates, order.State) {
			out = append(out, cloneOrder(order))
		}
	}
	slices.SortFunc(out, func(a, b *models.Order) int { return cmp.Compare(a.ShipmentCode, b.ShipmentCode) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) List(_ context.Context, filter db.OrderFilter) ([]*models.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	var matched []*models.Order
	for _, order := range s.orders {
		if filter.PaymentMethod != "" && order.PaymentMethod != filter.PaymentMethod {
			continue
		}
		if filter.PaymentStatus != "" && order.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if len(filter.States) > 0 && !slices.Contains(filter.States, order.State) {
			continue
		}
		if filter.Legacy != nil && !filter.Legacy.Matches(order) {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	slices.SortFunc(matched, func(a, b *models.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

// update applies mutate when allowed holds, under the store lock.
func (s *fakeStore) update(orderID uuid.UUID, expected string, allowed func(*models.Order) bool, mutate func(*models.Order)) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, db.ErrOrderNotFound
	}
	if !allowed(order) {
		return nil, fmt.Errorf("%w: expected %s", db.ErrInvalidStatusTransition, expected)
	}
	mutate(order)
	return cloneOrder(order), nil
}

func inStates(order *models.Order, states ...models.OrderState) bool {
	return slices.Contains(states, order.State)
}

func (s *fakeStore) MarkPaid(_ context.Context, orderID uuid.UUID, transactionNo string, at time.Time) (*models.Order, error) {
	return s.update(orderID, "unpaid gateway order",
		func(o *models.Order) bool {
			return o.PaymentMethod == models.PaymentMethodGateway && !o.IsPaid() &&
				inStates(o, models.StateAwaitingGatewayPayment, models.StatePaymentFailed)
		},
		func(o *models.Order) {
			o.PaymentStatus = models.PaymentPaid
			o.State = models.StateReadyToShip
			o.GatewayTransactionNo = transactionNo
			o.PaidAt = at
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryPaid, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) MarkPaymentFailed(_ context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	return s.update(orderID, "order awaiting payment",
		func(o *models.Order) bool { return !o.IsPaid() && o.State == models.StateAwaitingGatewayPayment },
		func(o *models.Order) {
			o.PaymentStatus = models.PaymentFailed
			o.State = models.StatePaymentFailed
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryPaymentFailed, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) AttachShipment(_ context.Context, orderID uuid.UUID, shipmentCode string, at time.Time) (*models.Order, error) {
	return s.update(orderID, "order without shipment",
		func(o *models.Order) bool {
			return !o.HasShipment() && inStates(o, models.StateCreated, models.StateReadyToShip)
		},
		func(o *models.Order) {
			o.ShipmentCode = shipmentCode
			o.State = models.StateShipmentCreated
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryReadyToPick, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) Confirm(_ context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	return s.update(orderID, "confirmable state",
		func(o *models.Order) bool {
			return inStates(o, models.StateCreated, models.StateReadyToShip, models.StateShipmentCreated, models.StateInTransit)
		},
		func(o *models.Order) {
			if o.ConfirmedAt.IsZero() {
				o.ConfirmedAt = at
				o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryConfirmed, At: at})
			}
			o.UpdatedAt = at
		})
}

func (s *fakeStore) Cancel(_ context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error) {
	return s.update(orderID, "non-terminal state",
		func(o *models.Order) bool { return !o.State.IsTerminal() },
		func(o *models.Order) {
			o.State = models.StateCancelled
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryCancel, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) AddPaymentRetry(_ context.Context, orderID uuid.UUID, txnRef string, at time.Time) (*models.Order, error) {
	return s.update(orderID, "unpaid gateway order",
		func(o *models.Order) bool {
			return o.PaymentMethod == models.PaymentMethodGateway && !o.IsPaid() &&
				inStates(o, models.StateAwaitingGatewayPayment, models.StatePaymentFailed)
		},
		func(o *models.Order) {
			o.PaymentRetries = append(o.PaymentRetries, models.PaymentRetry{TxnRef: txnRef, CreatedAt: at})
			o.PaymentStatus = models.PaymentPending
			o.State = models.StateAwaitingGatewayPayment
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: models.HistoryPendingRetry, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) ApplyCarrierStatus(_ context.Context, orderID uuid.UUID, carrierStatus string, state models.OrderState, at time.Time) (*models.Order, error) {
	return s.update(orderID, "in-flight shipment with a new status",
		func(o *models.Order) bool {
			return o.HasShipment() && o.CarrierStatus != carrierStatus &&
				inStates(o, models.InFlightStates...)
		},
		func(o *models.Order) {
			o.CarrierStatus = carrierStatus
			o.State = state
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: carrierStatus, At: at})
			o.UpdatedAt = at
		})
}

func (s *fakeStore) SetCODPaymentStatus(_ context.Context, orderID uuid.UUID, status models.PaymentStatus, at time.Time) (*models.Order, error) {
	return s.update(orderID, "cod order with a different payment status",
		func(o *models.Order) bool {
			return o.PaymentMethod == models.PaymentMethodCOD && o.PaymentStatus != status
		},
		func(o *models.Order) {
			o.PaymentStatus = status
			entry := models.HistoryMarkedUnpaid
			if status == models.PaymentPaid {
				o.PaidAt = at
				entry = models.HistoryPaid
			}
			o.StatusHistory = append(o.StatusHistory, models.StatusEntry{Status: entry, At: at})
			o.UpdatedAt = at
		})
}

type fakeCarrier struct {
	mu          sync.Mutex
	fee         int64
	feeErr      error
	feeCalls    int
	createErr   error
	created     []carrier.ShipmentRequest
	cancelErr   error
	cancelled   []string
	statuses    map[string]string
	detailErr   map[string]error
	detailCalls []string
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{
		fee:       30,
		statuses:  make(map[string]string),
		detailErr: make(map[string]error),
	}
}

func (c *fakeCarrier) QuoteFee(_ context.Context, _ carrier.FeeRequest) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feeCalls++
	if c.feeErr != nil {
		return 0, c.feeErr
	}
	return c.fee, nil
}

func (c *fakeCarrier) CreateShipment(_ context.Context, req carrier.ShipmentRequest) (*carrier.Shipment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, req)
	return &carrier.Shipment{OrderCode: fmt.Sprintf("GHN%03d", len(c.created)), TotalFee: c.fee}, nil
}

func (c *fakeCarrier) ShipmentDetail(_ context.Context, orderCode string) (*carrier.ShipmentDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailCalls = append(c.detailCalls, orderCode)
	if err := c.detailErr[orderCode]; err != nil {
		return nil, err
	}
	return &carrier.ShipmentDetail{OrderCode: orderCode, Status: c.statuses[orderCode]}, nil
}

func (c *fakeCarrier) CancelShipment(_ context.Context, orderCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, orderCode)
	return c.cancelErr
}

func (c *fakeCarrier) createCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

// countingGateway wraps the real gateway and counts minted retry references.
type countingGateway struct {
	*gateway.Gateway
	minted   atomic.Int32
	buildErr error
}

func (g *countingGateway) BuildPaymentURL(req gateway.PaymentRequest) (string, error) {
	if g.buildErr != nil {
		return "", g.buildErr
	}
	return g.Gateway.BuildPaymentURL(req)
}

func (g *countingGateway) NewRetryTxnRef() string {
	g.minted.Add(1)
	return g.Gateway.NewRetryTxnRef()
}

type fakeCatalog map[string]catalog.Product

func (c fakeCatalog) FindByID(_ context.Context, id string) (catalog.Product, error) {
	product, ok := c[id]
	if !ok || !product.Active {
		return catalog.Product{}, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, id)
	}
	return product, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []string
}

func (n *recordingNotifier) Notify(_ context.Context, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, notification.Kind)
}

func (n *recordingNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.kinds)
}

type testEnv struct {
	store    *fakeStore
	carrier  *fakeCarrier
	gateway  *countingGateway
	notifier *recordingNotifier
	quotes   *cache.MemoryProvider
	orders   *OrderService
	payments *PaymentService
	checkout *CheckoutService
	admin    *AdminService
	fees     *FeeCalculator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gw, err := gateway.New(gateway.Config{
		PaymentURL: "https://sandbox.example.com/pay",
		TmnCode:    "DEMO0001",
		HashSecret: testHashSecret,
		ReturnURL:  "https://shop.example.com/payments/return",
	})
	require.NoError(t, err)

	locks, err := cache.NewMemoryProvider()
	require.NoError(t, err)
	quotes, err := cache.NewMemoryProvider()
	require.NoError(t, err)

	env := &testEnv{
		store:    newFakeStore(),
		carrier:  newFakeCarrier(),
		gateway:  &countingGateway{Gateway: gw},
		notifier: &recordingNotifier{},
		quotes:   quotes,
	}
	env.orders = NewOrderService(env.store, env.carrier, env.gateway, locks, env.notifier, models.DefaultItemWeight, testLogger())
	env.orders.now = func() time.Time { return testNow }
	env.payments = NewPaymentService(env.gateway, env.orders, testLogger())
	env.fees = NewFeeCalculator(env.carrier, quotes, time.Minute, FeePolicyFallbackZero, models.DefaultItemWeight, testLogger())
	env.checkout = NewCheckoutService(fakeCatalog{
		"tea":    {ID: "tea", Code: "T-1", Name: "Tea", Price: 100, Weight: 300, Active: true},
		"cup":    {ID: "cup", Code: "C-1", Name: "Cup", Price: 45000, Weight: 0, Active: true},
		"free":   {ID: "free", Name: "Sticker", Price: 0, Weight: 10, Active: true},
		"hidden": {ID: "hidden", Name: "Old", Price: 10, Active: false},
	}, env.fees, env.orders, testLogger())
	env.admin = NewAdminService(env.store, env.orders, testLogger())
	return env
}

func testRecipient() models.Recipient {
	return models.Recipient{
		Name:       "Nguyen Van A",
		Phone:      "0900000000",
		Email:      "a@example.com",
		Address:    "1 Le Loi",
		ProvinceID: 202,
		DistrictID: 1442,
		WardCode:   "20109",
	}
}

func teaItems() []models.LineItem {
	return []models.LineItem{{ProductID: "tea", Name: "Tea", Quantity: 2, UnitPrice: 100, UnitWeight: 300}}
}

func (e *testEnv) createOrder(t *testing.T, method models.PaymentMethod) *models.Order {
	t.Helper()
	order, err := e.orders.Create(t.Context(), CreateOrderInput{
		Recipient:     testRecipient(),
		Items:         teaItems(),
		PaymentMethod: method,
		ShippingFee:   30,
	})
	require.NoError(t, err)
	return order
}

// callbackValues signs a gateway callback for txnRef with the given response code.
func callbackValues(t *testing.T, txnRef, responseCode string, amount int64) url.Values {
	t.Helper()

	signer, err := crypto.NewSigner(testHashSecret)
	require.NoError(t, err)
	params := map[string]string{
		"vnp_TmnCode":           "DEMO0001",
		"vnp_TxnRef":            txnRef,
		"vnp_Amount":            fmt.Sprintf("%d", amount*100),
		"vnp_ResponseCode":      responseCode,
		"vnp_TransactionStatus": responseCode,
		"vnp_TransactionNo":     "14000001",
		"vnp_BankCode":          "NCB",
		"vnp_OrderInfo":         "Thanh toan cho ma GD:" + txnRef,
		"vnp_PayDate":           "20250304163000",
	}
	values, err := url.ParseQuery(signer.SignedQuery(params))
	require.NoError(t, err)
	return values
}
