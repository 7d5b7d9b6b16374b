package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/gateway"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
)

const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
	ActorGateway  = "gateway"
	ActorCarrier  = "carrier"
	ActorSystem   = "system"

	defaultShipmentLockTTL = 30 * time.Second
	shipmentNote           = "Cho xem hang, khong cho thu"
)

// OrderService owns order state. Each transition is a guarded store update;
// only the caller whose update lands runs the side effects.
type OrderService struct {
	store         OrderStore
	carrier       Carrier
	gateway       PaymentGateway
	locker        Locker
	notifier      Notifier
	defaultWeight int
	lockTTL       time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

func NewOrderService(store OrderStore, carrierClient Carrier, paymentGateway PaymentGateway, locker Locker, notifier Notifier, defaultWeight int, logger *slog.Logger) *OrderService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if defaultWeight <= 0 {
		defaultWeight = models.DefaultItemWeight
	}
	return &OrderService{
		store:         store,
		carrier:       carrierClient,
		gateway:       paymentGateway,
		locker:        locker,
		notifier:      notifier,
		defaultWeight: defaultWeight,
		lockTTL:       defaultShipmentLockTTL,
		now:           time.Now,
		logger:        logger.With("component", "orders"),
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func startSpan(ctx context.Context, name, description string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(
		ctx,
		"service.order."+name,
		sentry.WithOpName("service.order"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	return span, span.Context()
}

func (s *OrderService) notify(ctx context.Context, kind string, order *models.Order, actor string) {
	s.notifier.Notify(ctx, Notification{Kind: kind, Order: order, Actor: actor, At: s.now()})
}

type CreateOrderInput struct {
	Recipient     models.Recipient
	Items         []models.LineItem
	PaymentMethod models.PaymentMethod
	ShippingFee   int64
}

func validateCreateInput(input CreateOrderInput) error {
	r := input.Recipient
	required := []struct {
		field string
		ok    bool
	}{
		{"name", strings.TrimSpace(r.Name) != ""},
		{"phone", strings.TrimSpace(r.Phone) != ""},
		{"email", strings.TrimSpace(r.Email) != ""},
		{"address", strings.TrimSpace(r.Address) != ""},
		{"province", r.ProvinceID > 0},
		{"district", r.DistrictID > 0},
		{"ward", strings.TrimSpace(r.WardCode) != ""},
	}
	for _, check := range required {
		if !check.ok {
			return fmt.Errorf("%w: recipient %s is required", ErrValidation, check.field)
		}
	}

	if !input.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", ErrValidation, input.PaymentMethod)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrValidation)
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrValidation, item.ProductID)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: price for %s must not be negative", ErrValidation, item.ProductID)
		}
	}
	if input.ShippingFee < 0 {
		return fmt.Errorf("%w: shipping fee must not be negative", ErrValidation)
	}
	return nil
}

// Create stores a new order. The primary transaction reference is the order id.
func (s *OrderService) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	span, ctx := startSpan(ctx, "create", "Create")
	defer span.Finish()

	if err := validateCreateInput(input); err != nil {
		observability.RecordOrderTransition(ctx, "create", "invalid")
		return nil, err
	}

	now := s.now()
	id := uuid.New()
	order := &models.Order{
		ID:            id,
		Recipient:     input.Recipient,
		Items:         append([]models.LineItem(nil), input.Items...),
		ShippingFee:   input.ShippingFee,
		PaymentMethod: input.PaymentMethod,
		TxnRef:        id.String(),
	}
	for i := range order.Items {
		if order.Items[i].UnitWeight <= 0 {
			order.Items[i].UnitWeight = s.defaultWeight
		}
	}

	if input.PaymentMethod == models.PaymentMethodGateway {
		order.State = models.StateAwaitingGatewayPayment
		order.PaymentStatus = models.PaymentPending
		order.StatusHistory = []models.StatusEntry{{Status: models.HistoryPendingPayment, At: now}}
	} else {
		order.State = models.StateReadyToShip
		order.PaymentStatus = models.PaymentUnpaid
		order.StatusHistory = []models.StatusEntry{{Status: models.HistoryReadyToPick, At: now}}
	}

	if err := s.store.Create(ctx, order); err != nil {
		observability.RecordOrderTransition(ctx, "create", "error")
		return nil, fmt.Errorf("%w: failed to store order: %w", ErrDependency, err)
	}

	observability.RecordOrderTransition(ctx, "create", "applied")
	s.loggerFromContext(ctx).Info("order created",
		"order_id", order.ID,
		"payment_method", order.PaymentMethod,
		"total", order.Total(),
	)
	s.notify(ctx, events.TypeOrderCreated, order, ActorCustomer)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	return order, nil
}

// FindByTxnRef resolves an order by its primary or any retry reference.
func (s *OrderService) FindByTxnRef(ctx context.Context, txnRef string) (*models.Order, error) {
	order, err := s.store.GetByTxnRef(ctx, txnRef)
	if err != nil {
		return nil, storeError(err)
	}
	return order, nil
}

// PaymentURL builds the gateway redirect for the order's primary reference.
func (s *OrderService) PaymentURL(order *models.Order, clientIP string) (string, error) {
	paymentURL, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		TxnRef:   order.TxnRef,
		Amount:   order.Total(),
		ClientIP: clientIP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return paymentURL, nil
}

// ConfirmAndShip is the admin approval. It creates the carrier shipment if
// none exists yet; a carrier failure is logged and a later call retries it.
func (s *OrderService) ConfirmAndShip(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	span, ctx := startSpan(ctx, "confirm_and_ship", "ConfirmAndShip")
	defer span.Finish()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if order.State.IsTerminal() {
		observability.RecordOrderTransition(ctx, "confirm", "conflict")
		return nil, fmt.Errorf("%w: order is %s", ErrConflict, order.State)
	}
	if order.State == models.StateAwaitingGatewayPayment {
		observability.RecordOrderTransition(ctx, "confirm", "conflict")
		return nil, fmt.Errorf("%w: order is awaiting gateway payment", ErrConflict)
	}

	if !order.HasShipment() {
		if shipped, err := s.ensureShipment(ctx, order); err != nil {
			s.loggerFromContext(ctx).Warn("shipment creation failed during approval", "error", err, "order_id", order.ID)
		} else {
			order = shipped
		}
	}

	confirmed, err := s.store.Confirm(ctx, order.ID, s.now())
	if err != nil {
		observability.RecordOrderTransition(ctx, "confirm", "error")
		return nil, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "confirm", "applied")
	s.notify(ctx, events.TypeOrderConfirmed, confirmed, ActorAdmin)
	return confirmed, nil
}

// ensureShipment creates the carrier shipment at most once per order. The
// per-order lock keeps concurrent callers from creating two parcels.
func (s *OrderService) ensureShipment(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.HasShipment() {
		return order, nil
	}
	logger := s.loggerFromContext(ctx)

	if s.locker != nil {
		lockKey := cache.OrderLockKey(order.ID.String())
		lockToken := uuid.NewString()
		acquired, err := s.locker.SetNX(ctx, lockKey, lockToken, s.lockTTL)
		switch {
		case err != nil:
			logger.Warn("order lock unavailable, creating shipment unlocked", "error", err, "order_id", order.ID)
		case !acquired:
			logger.Info("shipment creation already in progress", "order_id", order.ID)
			return order, nil
		default:
			defer func() {
				released, err := s.locker.Release(context.WithoutCancel(ctx), lockKey, lockToken)
				switch {
				case err != nil:
					logger.Warn("failed to release order lock", "error", err, "order_id", order.ID)
				case !released:
					logger.Warn("order lock expired before shipment creation finished", "order_id", order.ID)
				}
			}()
		}

		fresh, err := s.store.GetByID(ctx, order.ID)
		if err != nil {
			return order, storeError(err)
		}
		if fresh.HasShipment() {
			return fresh, nil
		}
		order = fresh
	}

	shipment, err := s.carrier.CreateShipment(ctx, s.shipmentRequest(order))
	if err != nil {
		observability.RecordOrderTransition(ctx, "attach_shipment", "carrier_error")
		return order, fmt.Errorf("%w: create shipment: %w", ErrDependency, err)
	}

	updated, err := s.store.AttachShipment(ctx, order.ID, shipment.OrderCode, s.now())
	if err != nil {
		observability.RecordOrderTransition(ctx, "attach_shipment", "error")
		logger.Error("carrier shipment created but not recorded",
			"error", err,
			"order_id", order.ID,
			"shipment_code", shipment.OrderCode,
		)
		return order, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "attach_shipment", "applied")
	logger.Info("carrier shipment created",
		"order_id", order.ID,
		"shipment_code", shipment.OrderCode,
		"cod_amount", order.CODAmount(),
	)
	return updated, nil
}

func (s *OrderService) shipmentRequest(order *models.Order) carrier.ShipmentRequest {
	items := make([]carrier.Item, 0, len(order.Items))
	names := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, carrier.Item{
			Name:     item.Name,
			Code:     item.Code,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
			Weight:   item.Weight(s.defaultWeight) / item.Quantity,
		})
		names = append(names, item.Name)
	}

	r := order.Recipient
	return carrier.ShipmentRequest{
		ClientOrderCode: order.ID.String(),
		Note:            shipmentNote,
		Content:         strings.Join(names, ", "),
		Recipient: carrier.Recipient{
			Name:       r.Name,
			Phone:      r.Phone,
			Address:    r.Address,
			DistrictID: r.DistrictID,
			WardCode:   r.WardCode,
		},
		Items:     items,
		Weight:    order.TotalWeight(s.defaultWeight),
		CODAmount: order.CODAmount(),
	}
}

// MarkPaid records a verified successful payment for txnRef. It reports
// whether this call changed the order; a repeat is a no-op.
func (s *OrderService) MarkPaid(ctx context.Context, txnRef, transactionNo string) (*models.Order, bool, error) {
	span, ctx := startSpan(ctx, "mark_paid", "MarkPaid")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	order, err := s.store.GetByTxnRef(ctx, txnRef)
	if err != nil {
		return nil, false, storeError(err)
	}
	if order.IsPaid() {
		observability.RecordOrderTransition(ctx, "mark_paid", "noop")
		return order, false, nil
	}
	if order.PaymentMethod != models.PaymentMethodGateway {
		observability.RecordOrderTransition(ctx, "mark_paid", "conflict")
		return nil, false, fmt.Errorf("%w: order %s is not a gateway order", ErrConflict, order.ID)
	}

	paid, err := s.store.MarkPaid(ctx, order.ID, transactionNo, s.now())
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		current, getErr := s.store.GetByID(ctx, order.ID)
		if getErr == nil && current.IsPaid() {
			observability.RecordOrderTransition(ctx, "mark_paid", "noop")
			return current, false, nil
		}
		observability.RecordOrderTransition(ctx, "mark_paid", "conflict")
		logger.Error("payment received for an order that can no longer be paid; refund manually",
			"order_id", order.ID,
			"state", order.State,
			"txn_ref", txnRef,
			"transaction_no", transactionNo,
		)
		return nil, false, fmt.Errorf("%w: order %s is %s", ErrConflict, order.ID, order.State)
	}
	if err != nil {
		observability.RecordOrderTransition(ctx, "mark_paid", "error")
		return nil, false, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "mark_paid", "applied")
	ctx, logger = logging.WithOrder(ctx, logger, paid)
	logger.Info("order paid", "txn_ref", txnRef, "transaction_no", transactionNo)

	if shipped, err := s.ensureShipment(ctx, paid); err != nil {
		logger.Warn("shipment creation after payment failed", "error", err)
	} else {
		paid = shipped
	}
	s.notify(ctx, events.TypeOrderPaid, paid, ActorGateway)
	return paid, true, nil
}

// MarkPaymentFailed records a verified failed payment. Paid and terminal
// orders are left untouched.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, txnRef string) (*models.Order, bool, error) {
	span, ctx := startSpan(ctx, "mark_payment_failed", "MarkPaymentFailed")
	defer span.Finish()

	order, err := s.store.GetByTxnRef(ctx, txnRef)
	if err != nil {
		return nil, false, storeError(err)
	}
	if order.IsPaid() || order.State != models.StateAwaitingGatewayPayment {
		observability.RecordOrderTransition(ctx, "mark_payment_failed", "noop")
		return order, false, nil
	}

	failed, err := s.store.MarkPaymentFailed(ctx, order.ID, s.now())
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		observability.RecordOrderTransition(ctx, "mark_payment_failed", "noop")
		current, getErr := s.store.GetByID(ctx, order.ID)
		if getErr != nil {
			return order, false, nil
		}
		return current, false, nil
	}
	if err != nil {
		observability.RecordOrderTransition(ctx, "mark_payment_failed", "error")
		return nil, false, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "mark_payment_failed", "applied")
	s.loggerFromContext(ctx).With(logging.OrderAttrs(failed)...).Info("order payment failed", "txn_ref", txnRef)
	s.notify(ctx, events.TypeOrderPaymentFailed, failed, ActorGateway)
	return failed, true, nil
}

// Cancel cancels a non-terminal order. A gateway order that is already paid
// cannot be cancelled here.
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID, actor string) (*models.Order, error) {
	span, ctx := startSpan(ctx, "cancel", "Cancel")
	defer span.Finish()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	return s.cancel(ctx, order, actor)
}

// CancelForCustomer cancels on behalf of the shopper who placed the order.
// An email mismatch is reported as not found.
func (s *OrderService) CancelForCustomer(ctx context.Context, orderID uuid.UUID, customerEmail string) (*models.Order, error) {
	span, ctx := startSpan(ctx, "cancel_for_customer", "CancelForCustomer")
	defer span.Finish()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if customerEmail == "" || !strings.EqualFold(strings.TrimSpace(order.Recipient.Email), strings.TrimSpace(customerEmail)) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return s.cancel(ctx, order, ActorCustomer)
}

func (s *OrderService) cancel(ctx context.Context, order *models.Order, actor string) (*models.Order, error) {
	logger := s.loggerFromContext(ctx)

	if order.State.IsTerminal() {
		observability.RecordOrderTransition(ctx, "cancel", "conflict")
		return nil, fmt.Errorf("%w: order is %s", ErrConflict, order.State)
	}
	if order.IsPaid() && order.PaymentMethod == models.PaymentMethodGateway {
		observability.RecordOrderTransition(ctx, "cancel", "conflict")
		return nil, fmt.Errorf("%w: paid gateway orders cannot be cancelled", ErrConflict)
	}

	if order.HasShipment() {
		if err := s.carrier.CancelShipment(ctx, order.ShipmentCode); err != nil {
			logger.Warn("carrier cancel failed, cancelling locally",
				"error", err,
				"order_id", order.ID,
				"shipment_code", order.ShipmentCode,
			)
		}
	}

	cancelled, err := s.store.Cancel(ctx, order.ID, s.now())
	if err != nil {
		observability.RecordOrderTransition(ctx, "cancel", "error")
		return nil, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "cancel", "applied")
	logger.With(logging.OrderAttrs(cancelled)...).Info("order cancelled", "actor", actor)
	s.notify(ctx, events.TypeOrderCancelled, cancelled, actor)
	return cancelled, nil
}

type RetryPaymentResult struct {
	Order      *models.Order
	TxnRef     string
	PaymentURL string
}

// RetryPayment mints a new transaction reference for an unpaid gateway order
// and returns a fresh redirect for the stored total.
func (s *OrderService) RetryPayment(ctx context.Context, orderID uuid.UUID, clientIP string) (*RetryPaymentResult, error) {
	span, ctx := startSpan(ctx, "retry_payment", "RetryPayment")
	defer span.Finish()

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	switch {
	case order.PaymentMethod != models.PaymentMethodGateway:
		observability.RecordOrderTransition(ctx, "retry_payment", "conflict")
		return nil, fmt.Errorf("%w: order is not paid through the gateway", ErrConflict)
	case order.IsPaid():
		observability.RecordOrderTransition(ctx, "retry_payment", "conflict")
		return nil, fmt.Errorf("%w: order is already paid", ErrConflict)
	case order.State.IsTerminal() && order.State != models.StatePaymentFailed:
		observability.RecordOrderTransition(ctx, "retry_payment", "conflict")
		return nil, fmt.Errorf("%w: order is %s", ErrConflict, order.State)
	}

	txnRef := s.gateway.NewRetryTxnRef()
	updated, err := s.store.AddPaymentRetry(ctx, order.ID, txnRef, s.now())
	if err != nil {
		observability.RecordOrderTransition(ctx, "retry_payment", "error")
		return nil, storeError(err)
	}

	paymentURL, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
		TxnRef:   txnRef,
		Amount:   updated.Total(),
		ClientIP: clientIP,
	})
	if err != nil {
		observability.RecordOrderTransition(ctx, "retry_payment", "error")
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	observability.RecordOrderTransition(ctx, "retry_payment", "applied")
	s.loggerFromContext(ctx).With(logging.OrderAttrs(updated)...).Info("payment retry issued", "txn_ref", txnRef)
	return &RetryPaymentResult{Order: updated, TxnRef: txnRef, PaymentURL: paymentURL}, nil
}

// SyncFromCarrier applies a carrier status to the order holding shipmentCode.
// It reports whether anything changed; repeating a status is a no-op.
func (s *OrderService) SyncFromCarrier(ctx context.Context, shipmentCode, carrierStatus string) (*models.Order, bool, error) {
	span, ctx := startSpan(ctx, "sync_from_carrier", "SyncFromCarrier")
	defer span.Finish()

	status := strings.TrimSpace(carrierStatus)
	if status == "" {
		return nil, false, fmt.Errorf("%w: carrier status is required", ErrValidation)
	}

	order, err := s.store.GetByShipmentCode(ctx, shipmentCode)
	if err != nil {
		return nil, false, storeError(err)
	}
	if order.CarrierStatus == status || order.State.IsTerminal() {
		observability.RecordOrderTransition(ctx, "sync_from_carrier", "noop")
		return order, false, nil
	}

	state := CarrierState(status)
	synced, err := s.store.ApplyCarrierStatus(ctx, order.ID, status, state, s.now())
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		observability.RecordOrderTransition(ctx, "sync_from_carrier", "noop")
		return order, false, nil
	}
	if err != nil {
		observability.RecordOrderTransition(ctx, "sync_from_carrier", "error")
		return nil, false, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "sync_from_carrier", "applied")
	s.loggerFromContext(ctx).Info("carrier status applied",
		"order_id", synced.ID,
		"shipment_code", shipmentCode,
		"carrier_status", status,
		"state", synced.State,
	)
	s.notify(ctx, events.TypeOrderCarrierSynced, synced, ActorCarrier)
	return synced, true, nil
}

// RefreshFromCarrier fetches the live carrier status for one order and
// applies it.
func (s *OrderService) RefreshFromCarrier(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, false, storeError(err)
	}
	if !order.HasShipment() {
		return nil, false, fmt.Errorf("%w: order has no carrier shipment", ErrConflict)
	}

	detail, err := s.carrier.ShipmentDetail(ctx, order.ShipmentCode)
	if err != nil {
		return nil, false, fmt.Errorf("%w: shipment detail: %w", ErrDependency, err)
	}
	return s.SyncFromCarrier(ctx, order.ShipmentCode, detail.Status)
}

// SetCODPaymentStatus is the manual paid/unpaid toggle for cash-on-delivery
// orders.
func (s *OrderService) SetCODPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (*models.Order, error) {
	span, ctx := startSpan(ctx, "set_cod_payment_status", "SetCODPaymentStatus")
	defer span.Finish()

	if status != models.PaymentPaid && status != models.PaymentUnpaid {
		return nil, fmt.Errorf("%w: payment status must be paid or unpaid", ErrValidation)
	}

	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if order.PaymentMethod != models.PaymentMethodCOD {
		observability.RecordOrderTransition(ctx, "set_cod_payment_status", "conflict")
		return nil, fmt.Errorf("%w: only cash-on-delivery orders can be updated manually", ErrConflict)
	}
	if order.PaymentStatus == status {
		observability.RecordOrderTransition(ctx, "set_cod_payment_status", "noop")
		return order, nil
	}

	updated, err := s.store.SetCODPaymentStatus(ctx, order.ID, status, s.now())
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		observability.RecordOrderTransition(ctx, "set_cod_payment_status", "noop")
		return s.Get(ctx, order.ID)
	}
	if err != nil {
		observability.RecordOrderTransition(ctx, "set_cod_payment_status", "error")
		return nil, storeError(err)
	}

	observability.RecordOrderTransition(ctx, "set_cod_payment_status", "applied")
	s.loggerFromContext(ctx).With(logging.OrderAttrs(updated)...).Info("cod payment status updated")
	return updated, nil
}

// ListInFlight returns orders whose shipments the reconciliation sweep polls.
func (s *OrderService) ListInFlight(ctx context.Context, limit int) ([]*models.Order, error) {
	orders, err := s.store.ListInFlight(ctx, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return orders, nil
}
