package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
)

// AdminListQuery is the admin order list filter. LegacyStatus narrows by the
// numeric code older clients use; it combines with State.
type AdminListQuery struct {
	PaymentMethod models.PaymentMethod
	PaymentStatus models.PaymentStatus
	State         models.OrderState
	LegacyStatus  *int
	Page          int
	Limit         int
}

type AdminListResult struct {
	Orders []*models.Order
	Total  int
	Page   int
	Limit  int
}

func (r *AdminListResult) TotalPages() int {
	if r.Limit <= 0 || r.Total == 0 {
		return 0
	}
	return (r.Total + r.Limit - 1) / r.Limit
}

type AdminService struct {
	store  OrderStore
	orders *OrderService
	logger *slog.Logger
}

func NewAdminService(store OrderStore, orders *OrderService, logger *slog.Logger) *AdminService {
	return &AdminService{
		store:  store,
		orders: orders,
		logger: logger.With("component", "admin"),
	}
}

func (q AdminListQuery) filter() (db.OrderFilter, bool, error) {
	var filter db.OrderFilter

	if q.PaymentMethod != "" {
		if !q.PaymentMethod.Valid() {
			return filter, false, fmt.Errorf("%w: unknown payment method %q", ErrValidation, q.PaymentMethod)
		}
		filter.PaymentMethod = q.PaymentMethod
	}
	if q.PaymentStatus != "" {
		if !q.PaymentStatus.Valid() {
			return filter, false, fmt.Errorf("%w: unknown payment status %q", ErrValidation, q.PaymentStatus)
		}
		filter.PaymentStatus = q.PaymentStatus
	}

	var states []models.OrderState
	if q.State != "" {
		if !q.State.Valid() {
			return filter, false, fmt.Errorf("%w: unknown state %q", ErrValidation, q.State)
		}
		states = []models.OrderState{q.State}
	}
	if q.LegacyStatus != nil {
		legacy, ok := models.LegacyFilterFor(*q.LegacyStatus)
		if !ok {
			return filter, false, fmt.Errorf("%w: unknown status %d", ErrValidation, *q.LegacyStatus)
		}
		if states != nil {
			states = slices.DeleteFunc(states, func(s models.OrderState) bool {
				return !slices.Contains(legacy.AllStates(), s)
			})
			if len(states) == 0 {
				return filter, false, nil
			}
		}
		filter.Legacy = &legacy
	}
	filter.States = states

	page := max(q.Page, 1)
	filter.Limit = q.Limit
	filter = filter.Normalized()
	filter.Offset = (page - 1) * filter.Limit
	return filter, true, nil
}

// List returns one page of orders, newest first.
func (s *AdminService) List(ctx context.Context, query AdminListQuery) (*AdminListResult, error) {
	span, ctx := startSpan(ctx, "admin_list", "AdminList")
	defer span.Finish()

	filter, satisfiable, err := query.filter()
	if err != nil {
		return nil, err
	}
	result := &AdminListResult{
		Orders: []*models.Order{},
		Page:   max(query.Page, 1),
		Limit:  filter.Normalized().Limit,
	}
	if !satisfiable {
		return result, nil
	}

	orders, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	result.Orders = orders
	result.Total = total
	return result, nil
}

func (s *AdminService) Detail(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *AdminService) Approve(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.ConfirmAndShip(ctx, orderID)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("order approved",
		"order_id", order.ID,
		"shipment_code", order.ShipmentCode,
	)
	return order, nil
}

func (s *AdminService) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.Cancel(ctx, orderID, ActorAdmin)
}

func (s *AdminService) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus) (*models.Order, error) {
	return s.orders.SetCODPaymentStatus(ctx, orderID, status)
}

// Sync pulls the live carrier status for one order. Changed reports whether
// the order moved.
func (s *AdminService) Sync(ctx context.Context, orderID uuid.UUID) (*models.Order, bool, error) {
	return s.orders.RefreshFromCarrier(ctx, orderID)
}
