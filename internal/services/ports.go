package services

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/gateway"
	"github.com/gitshopapp/storefront/internal/models"
)

// OrderStore persists orders. Every mutating method is a guarded update that
// returns db.ErrInvalidStatusTransition when its precondition does not hold.
type OrderStore interface {
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

type Carrier interface {
	QuoteFee(ctx context.Context, req carrier.FeeRequest) (int64, error)
	CreateShipment(ctx context.Context, req carrier.ShipmentRequest) (*carrier.Shipment, error)
	ShipmentDetail(ctx context.Context, orderCode string) (*carrier.ShipmentDetail, error)
	CancelShipment(ctx context.Context, orderCode string) error
}

type PaymentGateway interface {
	BuildPaymentURL(req gateway.PaymentRequest) (string, error)
	ParseCallback(values url.Values) (*gateway.Callback, error)
	NewRetryTxnRef() string
}

type Catalog interface {
	FindByID(ctx context.Context, id string) (catalog.Product, error)
}

// Locker takes short-lived named locks. cache.Provider satisfies it.
type Locker interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string, token string) (bool, error)
}

// QuoteCache stores fee quotes. cache.Provider satisfies it.
type QuoteCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}
