// Package storetest holds the behaviour every order store must share. The
// Postgres and Mongo store tests run it against a live database.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/models"
)

type Store interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByTxnRef(ctx context.Context, txnRef string) (*models.Order, error)
	GetByShipmentCode(ctx context.Context, shipmentCode string) (*models.Order, error)
	ListInFlight(ctx context.Context, limit int) ([]*models.Order, error)
	List(ctx context.Context, filter db.OrderFilter) ([]*models.Order, int, error)

	MarkPaid(ctx context.Context, orderID uuid.UUID, transactionNo string, at time.Time) (*models.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error)
	AttachShipment(ctx context.Context, orderID uuid.UUID, shipmentCode string, at time.Time) (*models.Order, error)
	Confirm(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, at time.Time) (*models.Order, error)
	AddPaymentRetry(ctx context.Context, orderID uuid.UUID, txnRef string, at time.Time) (*models.Order, error)
	ApplyCarrierStatus(ctx context.Context, orderID uuid.UUID, carrierStatus string, state models.OrderState, at time.Time) (*models.Order, error)
	SetCODPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus, at time.Time) (*models.Order, error)
}

// fixture seeds orders that share one recipient email, so List calls can be
// scoped to a single test.
type fixture struct {
	t     *testing.T
	store Store
	email string
	seq   int
}

func newFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	return &fixture{t: t, store: store, email: fmt.Sprintf("buyer-%s@example.com", uuid.NewString()[:8])}
}

func (f *fixture) seed(method models.PaymentMethod, state models.OrderState, status models.PaymentStatus) *models.Order {
	f.t.Helper()
	f.seq++
	order := &models.Order{
		ID: uuid.New(),
		Recipient: models.Recipient{
			Name:       "Nguyen Van A",
			Phone:      "0901234567",
			Email:      f.email,
			Address:    "12 Ly Thuong Kiet",
			ProvinceID: 202,
			DistrictID: 1442,
			WardCode:   "20109",
		},
		Items: []models.LineItem{
			{ProductID: "tea", Name: "Tea", Quantity: 2, UnitPrice: 100, UnitWeight: 300},
		},
		ShippingFee:   30,
		PaymentMethod: method,
		PaymentStatus: status,
		TxnRef:        fmt.Sprintf("T%s%03d", uuid.NewString()[:12], f.seq),
		State:         state,
		StatusHistory: []models.StatusEntry{{Status: models.HistoryReadyToPick, At: now()}},
	}
	if err := f.store.Create(f.t.Context(), order); err != nil {
		f.t.Fatalf("Create() error = %v", err)
	}
	return order
}

func (f *fixture) shipped(state models.OrderState) *models.Order {
	f.t.Helper()
	order := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)
	if _, err := f.store.AttachShipment(f.t.Context(), order.ID, shipmentCode(), now()); err != nil {
		f.t.Fatalf("AttachShipment() error = %v", err)
	}
	if state == models.StateInTransit {
		if _, err := f.store.ApplyCarrierStatus(f.t.Context(), order.ID, "picking", models.StateInTransit, now()); err != nil {
			f.t.Fatalf("ApplyCarrierStatus() error = %v", err)
		}
	}
	got, err := f.store.GetByID(f.t.Context(), order.ID)
	if err != nil {
		f.t.Fatalf("GetByID() error = %v", err)
	}
	return got
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func shipmentCode() string {
	return "GHN" + uuid.NewString()[:10]
}

func wantInvalid(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, db.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func lastHistory(order *models.Order) string {
	if len(order.StatusHistory) == 0 {
		return ""
	}
	return order.StatusHistory[len(order.StatusHistory)-1].Status
}

func historyCount(order *models.Order, status string) int {
	count := 0
	for _, entry := range order.StatusHistory {
		if entry.Status == status {
			count++
		}
	}
	return count
}

// Run exercises every guarded transition of store.
func Run(t *testing.T, store Store) {
	t.Run("lookups", func(t *testing.T) { testLookups(t, store) })
	t.Run("mark paid", func(t *testing.T) { testMarkPaid(t, store) })
	t.Run("mark payment failed", func(t *testing.T) { testMarkPaymentFailed(t, store) })
	t.Run("attach shipment once", func(t *testing.T) { testAttachShipment(t, store) })
	t.Run("confirm", func(t *testing.T) { testConfirm(t, store) })
	t.Run("cancel", func(t *testing.T) { testCancel(t, store) })
	t.Run("payment retry", func(t *testing.T) { testPaymentRetry(t, store) })
	t.Run("carrier status", func(t *testing.T) { testCarrierStatus(t, store) })
	t.Run("cod payment status", func(t *testing.T) { testCODPaymentStatus(t, store) })
	t.Run("list", func(t *testing.T) { testList(t, store) })
	t.Run("unknown order", func(t *testing.T) { testUnknownOrder(t, store) })
}

func testLookups(t *testing.T, store Store) {
	f := newFixture(t, store)
	order := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)

	got, err := store.GetByID(t.Context(), order.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.TxnRef != order.TxnRef || got.Recipient != order.Recipient || got.Total() != order.Total() {
		t.Fatalf("GetByID() = %+v, want %+v", got, order)
	}

	byRef, err := store.GetByTxnRef(t.Context(), order.TxnRef)
	if err != nil || byRef.ID != order.ID {
		t.Fatalf("GetByTxnRef() = %v, %v", byRef, err)
	}
	if _, err := store.GetByTxnRef(t.Context(), "missing-"+order.TxnRef); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func testMarkPaid(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()

	awaiting := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)
	paid, err := store.MarkPaid(t.Context(), awaiting.ID, "14422574", at)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if paid.PaymentStatus != models.PaymentPaid || paid.State != models.StateReadyToShip {
		t.Fatalf("MarkPaid() = %s/%s", paid.State, paid.PaymentStatus)
	}
	if paid.GatewayTransactionNo != "14422574" || !paid.PaidAt.Equal(at) || lastHistory(paid) != models.HistoryPaid {
		t.Fatalf("MarkPaid() recorded %+v", paid)
	}
	_, err = store.MarkPaid(t.Context(), awaiting.ID, "14422575", at)
	wantInvalid(t, err)

	failed := f.seed(models.PaymentMethodGateway, models.StatePaymentFailed, models.PaymentFailed)
	if _, err := store.MarkPaid(t.Context(), failed.ID, "1", at); err != nil {
		t.Fatalf("MarkPaid() after failure error = %v", err)
	}

	for _, rejected := range []*models.Order{
		f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid),
		f.seed(models.PaymentMethodGateway, models.StateCancelled, models.PaymentPending),
	} {
		_, err := store.MarkPaid(t.Context(), rejected.ID, "1", at)
		wantInvalid(t, err)
	}
}

func testMarkPaymentFailed(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()

	awaiting := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)
	failed, err := store.MarkPaymentFailed(t.Context(), awaiting.ID, at)
	if err != nil {
		t.Fatalf("MarkPaymentFailed() error = %v", err)
	}
	if failed.State != models.StatePaymentFailed || failed.PaymentStatus != models.PaymentFailed {
		t.Fatalf("MarkPaymentFailed() = %s/%s", failed.State, failed.PaymentStatus)
	}

	paid := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)
	if _, err := store.MarkPaid(t.Context(), paid.ID, "1", at); err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	_, err = store.MarkPaymentFailed(t.Context(), paid.ID, at)
	wantInvalid(t, err)

	got, err := store.GetByID(t.Context(), paid.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PaymentStatus != models.PaymentPaid {
		t.Fatalf("late failure changed payment status to %s", got.PaymentStatus)
	}
}

func testAttachShipment(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()
	order := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)
	code := shipmentCode()

	shipped, err := store.AttachShipment(t.Context(), order.ID, code, at)
	if err != nil {
		t.Fatalf("AttachShipment() error = %v", err)
	}
	if shipped.ShipmentCode != code || shipped.State != models.StateShipmentCreated {
		t.Fatalf("AttachShipment() = %s/%s", shipped.ShipmentCode, shipped.State)
	}

	_, err = store.AttachShipment(t.Context(), order.ID, shipmentCode(), at)
	wantInvalid(t, err)

	byCode, err := store.GetByShipmentCode(t.Context(), code)
	if err != nil || byCode.ID != order.ID {
		t.Fatalf("GetByShipmentCode() = %v, %v", byCode, err)
	}

	awaiting := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)
	_, err = store.AttachShipment(t.Context(), awaiting.ID, shipmentCode(), at)
	wantInvalid(t, err)
}

func testConfirm(t *testing.T, store Store) {
	f := newFixture(t, store)
	first := now()
	order := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)

	confirmed, err := store.Confirm(t.Context(), order.ID, first)
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	again, err := store.Confirm(t.Context(), order.ID, first.Add(time.Minute))
	if err != nil {
		t.Fatalf("second Confirm() error = %v", err)
	}
	if !confirmed.ConfirmedAt.Equal(first) || !again.ConfirmedAt.Equal(first) {
		t.Fatalf("confirmed_at = %v then %v, want %v", confirmed.ConfirmedAt, again.ConfirmedAt, first)
	}
	if n := historyCount(again, models.HistoryConfirmed); n != 1 {
		t.Fatalf("confirmed history entries = %d, want 1", n)
	}

	cancelled := f.seed(models.PaymentMethodCOD, models.StateCancelled, models.PaymentUnpaid)
	_, err = store.Confirm(t.Context(), cancelled.ID, first)
	wantInvalid(t, err)
}

func testCancel(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()

	for _, state := range models.NonTerminalStates {
		order := f.seed(models.PaymentMethodCOD, state, models.PaymentUnpaid)
		cancelled, err := store.Cancel(t.Context(), order.ID, at)
		if err != nil {
			t.Fatalf("Cancel(%s) error = %v", state, err)
		}
		if cancelled.State != models.StateCancelled || lastHistory(cancelled) != models.HistoryCancel {
			t.Fatalf("Cancel(%s) = %s", state, cancelled.State)
		}
	}

	for _, state := range models.NonTerminalStates {
		paid := f.seed(models.PaymentMethodGateway, state, models.PaymentPaid)
		_, err := store.Cancel(t.Context(), paid.ID, at)
		wantInvalid(t, err)
	}

	for _, state := range []models.OrderState{models.StateDelivered, models.StateCancelled, models.StatePaymentFailed} {
		terminal := f.seed(models.PaymentMethodCOD, state, models.PaymentUnpaid)
		_, err := store.Cancel(t.Context(), terminal.ID, at)
		wantInvalid(t, err)
	}
}

func testPaymentRetry(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()

	failed := f.seed(models.PaymentMethodGateway, models.StatePaymentFailed, models.PaymentFailed)
	retryRef := "R" + failed.TxnRef
	retried, err := store.AddPaymentRetry(t.Context(), failed.ID, retryRef, at)
	if err != nil {
		t.Fatalf("AddPaymentRetry() error = %v", err)
	}
	if retried.State != models.StateAwaitingGatewayPayment || retried.PaymentStatus != models.PaymentPending {
		t.Fatalf("AddPaymentRetry() = %s/%s", retried.State, retried.PaymentStatus)
	}
	if len(retried.PaymentRetries) != 1 || retried.PaymentRetries[0].TxnRef != retryRef {
		t.Fatalf("payment retries = %+v", retried.PaymentRetries)
	}

	byRetry, err := store.GetByTxnRef(t.Context(), retryRef)
	if err != nil || byRetry.ID != failed.ID {
		t.Fatalf("GetByTxnRef(retry) = %v, %v", byRetry, err)
	}

	for _, rejected := range []*models.Order{
		f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid),
		f.seed(models.PaymentMethodGateway, models.StateReadyToShip, models.PaymentPaid),
		f.seed(models.PaymentMethodGateway, models.StateCancelled, models.PaymentPending),
	} {
		_, err := store.AddPaymentRetry(t.Context(), rejected.ID, "R"+rejected.TxnRef, at)
		wantInvalid(t, err)
	}
}

func testCarrierStatus(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()
	order := f.shipped(models.StateShipmentCreated)

	moving, err := store.ApplyCarrierStatus(t.Context(), order.ID, "delivering", models.StateInTransit, at)
	if err != nil {
		t.Fatalf("ApplyCarrierStatus() error = %v", err)
	}
	if moving.State != models.StateInTransit || moving.CarrierStatus != "delivering" {
		t.Fatalf("ApplyCarrierStatus() = %s/%s", moving.State, moving.CarrierStatus)
	}

	_, err = store.ApplyCarrierStatus(t.Context(), order.ID, "delivering", models.StateInTransit, at)
	wantInvalid(t, err)

	delivered, err := store.ApplyCarrierStatus(t.Context(), order.ID, "delivered", models.StateDelivered, at)
	if err != nil {
		t.Fatalf("ApplyCarrierStatus(delivered) error = %v", err)
	}
	if delivered.State != models.StateDelivered || historyCount(delivered, "delivering") != 1 {
		t.Fatalf("history after delivery = %+v", delivered.StatusHistory)
	}

	_, err = store.ApplyCarrierStatus(t.Context(), order.ID, "returned", models.StateCancelled, at)
	wantInvalid(t, err)

	unshipped := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)
	_, err = store.ApplyCarrierStatus(t.Context(), unshipped.ID, "picking", models.StateInTransit, at)
	wantInvalid(t, err)
}

func testCODPaymentStatus(t *testing.T, store Store) {
	f := newFixture(t, store)
	at := now()
	order := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)

	paid, err := store.SetCODPaymentStatus(t.Context(), order.ID, models.PaymentPaid, at)
	if err != nil {
		t.Fatalf("SetCODPaymentStatus(paid) error = %v", err)
	}
	if paid.PaymentStatus != models.PaymentPaid || !paid.PaidAt.Equal(at) || lastHistory(paid) != models.HistoryPaid {
		t.Fatalf("SetCODPaymentStatus(paid) = %s at %v", paid.PaymentStatus, paid.PaidAt)
	}

	_, err = store.SetCODPaymentStatus(t.Context(), order.ID, models.PaymentPaid, at)
	wantInvalid(t, err)

	unpaid, err := store.SetCODPaymentStatus(t.Context(), order.ID, models.PaymentUnpaid, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("SetCODPaymentStatus(unpaid) error = %v", err)
	}
	if unpaid.PaymentStatus != models.PaymentUnpaid || !unpaid.PaidAt.IsZero() || lastHistory(unpaid) != models.HistoryMarkedUnpaid {
		t.Fatalf("SetCODPaymentStatus(unpaid) = %s at %v", unpaid.PaymentStatus, unpaid.PaidAt)
	}

	gatewayOrder := f.seed(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment, models.PaymentPending)
	_, err = store.SetCODPaymentStatus(t.Context(), gatewayOrder.ID, models.PaymentPaid, at)
	wantInvalid(t, err)
}

func testList(t *testing.T, store Store) {
	f := newFixture(t, store)
	codReady := f.seed(models.PaymentMethodCOD, models.StateReadyToShip, models.PaymentUnpaid)
	paidGateway := f.seed(models.PaymentMethodGateway, models.StateReadyToShip, models.PaymentPaid)
	inTransit := f.shipped(models.StateInTransit)
	cancelled := f.seed(models.PaymentMethodCOD, models.StateCancelled, models.PaymentUnpaid)

	ids := func(orders []*models.Order) []uuid.UUID {
		out := make([]uuid.UUID, 0, len(orders))
		for _, order := range orders {
			out = append(out, order.ID)
		}
		slices.SortFunc(out, func(a, b uuid.UUID) int { return slices.Compare(a[:], b[:]) })
		return out
	}
	sorted := func(orders ...*models.Order) []uuid.UUID { return ids(orders) }

	legacy := func(code int) *models.LegacyStatusFilter {
		filter, ok := models.LegacyFilterFor(code)
		if !ok {
			t.Fatalf("LegacyFilterFor(%d) not ok", code)
		}
		return &filter
	}

	tests := []struct {
		name   string
		filter db.OrderFilter
		want   []uuid.UUID
	}{
		{name: "all", filter: db.OrderFilter{}, want: sorted(codReady, paidGateway, inTransit, cancelled)},
		{name: "payment method", filter: db.OrderFilter{PaymentMethod: models.PaymentMethodGateway}, want: sorted(paidGateway)},
		{name: "state", filter: db.OrderFilter{States: []models.OrderState{models.StateCancelled}}, want: sorted(cancelled)},
		{name: "legacy confirmed", filter: db.OrderFilter{Legacy: legacy(models.LegacyStatusConfirmed)}, want: sorted(paidGateway)},
		{name: "legacy ready", filter: db.OrderFilter{Legacy: legacy(models.LegacyStatusReady)}, want: sorted(codReady, inTransit)},
		{name: "legacy cancelled", filter: db.OrderFilter{Legacy: legacy(models.LegacyStatusCancelled)}, want: sorted(cancelled)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := tt.filter
			filter.Email = f.email
			orders, total, err := store.List(t.Context(), filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got := ids(orders); !slices.Equal(got, tt.want) || total != len(tt.want) {
				t.Fatalf("List() = %v (total %d), want %v", got, total, tt.want)
			}
		})
	}

	inFlight, err := store.ListInFlight(t.Context(), 100000)
	if err != nil {
		t.Fatalf("ListInFlight() error = %v", err)
	}
	if !slices.ContainsFunc(inFlight, func(o *models.Order) bool { return o.ID == inTransit.ID }) {
		t.Fatal("ListInFlight() is missing the in-transit order")
	}
	if slices.ContainsFunc(inFlight, func(o *models.Order) bool { return o.ID == codReady.ID }) {
		t.Fatal("ListInFlight() returned an order without a shipment")
	}
}

func testUnknownOrder(t *testing.T, store Store) {
	missing := uuid.New()
	at := now()

	if _, err := store.GetByID(t.Context(), missing); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("GetByID() expected ErrOrderNotFound, got %v", err)
	}
	if _, err := store.MarkPaid(t.Context(), missing, "1", at); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("MarkPaid() expected ErrOrderNotFound, got %v", err)
	}
	if _, err := store.Cancel(t.Context(), missing, at); !errors.Is(err, db.ErrOrderNotFound) {
		t.Fatalf("Cancel() expected ErrOrderNotFound, got %v", err)
	}
}
