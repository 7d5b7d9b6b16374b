package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/storefront/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var orderColumnNames = []string{
	"id", "recipient_name", "recipient_phone", "recipient_email", "recipient_address",
	"province_id", "district_id", "ward_code", "items", "shipping_fee",
	"payment_method", "payment_status", "txn_ref", "payment_retries",
	"gateway_transaction_no", "paid_at", "shipment_code", "state", "carrier_status",
	"status_history", "confirmed_at", "created_at", "updated_at",
}

var orderColumns = strings.Join(orderColumnNames, ", ")

const nonTerminalStates = `('created', 'awaiting_gateway_payment', 'ready_to_ship', 'shipment_created', 'in_transit')`

func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	retriesJSON, err := json.Marshal(nonNilRetries(order.PaymentRetries))
	if err != nil {
		return fmt.Errorf("failed to encode payment retries: %w", err)
	}
	historyJSON, err := json.Marshal(nonNilHistory(order.StatusHistory))
	if err != nil {
		return fmt.Errorf("failed to encode status history: %w", err)
	}

	query := `
		INSERT INTO orders (
			id, recipient_name, recipient_phone, recipient_email, recipient_address,
			province_id, district_id, ward_code, items, shipping_fee,
			payment_method, payment_status, txn_ref, payment_retries,
			shipment_code, state, status_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`
	r := order.Recipient
	err = s.pool.QueryRow(ctx, query,
		order.ID, r.Name, r.Phone, r.Email, r.Address,
		r.ProvinceID, r.DistrictID, r.WardCode, itemsJSON, order.ShippingFee,
		string(order.PaymentMethod), string(order.PaymentStatus), order.TxnRef, retriesJSON,
		nullText(order.ShipmentCode), string(order.State), historyJSON,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(s.pool.QueryRow(ctx, query, orderID))
}

// GetByTxnRef resolves the primary reference first, then the retry set.
func (s *OrderStore) GetByTxnRef(ctx context.Context, txnRef string) (*Order, error) {
	retryMatch, err := json.Marshal([]map[string]string{{"txn_ref": txnRef}})
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE txn_ref = $1 OR payment_retries @> $2::jsonb
		ORDER BY (txn_ref = $1) DESC
		LIMIT 1
	`
	return scanOrder(s.pool.QueryRow(ctx, query, txnRef, retryMatch))
}

func (s *OrderStore) GetByShipmentCode(ctx context.Context, shipmentCode string) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE shipment_code = $1`
	return scanOrder(s.pool.QueryRow(ctx, query, shipmentCode))
}

// ListInFlight returns orders with a shipment still moving, least recently
// touched first.
func (s *OrderStore) ListInFlight(ctx context.Context, limit int) ([]*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE shipment_code IS NOT NULL AND state IN ('shipment_created', 'in_transit')
		ORDER BY updated_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight orders: %w", err)
	}
	return collectOrders(rows)
}

func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, transactionNo string, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid', state = 'ready_to_ship', gateway_transaction_no = $2,
		    paid_at = $3, status_history = status_history || $4::jsonb, updated_at = $3
		WHERE id = $1 AND payment_method = 'gateway' AND payment_status <> 'paid'
		  AND state IN ('awaiting_gateway_payment', 'payment_failed')
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "unpaid gateway order", query,
		orderID, nullText(transactionNo), at, historyEntry(models.HistoryPaid, at))
}

func (s *OrderStore) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET payment_status = 'failed', state = 'payment_failed',
		    status_history = status_history || $3::jsonb, updated_at = $2
		WHERE id = $1 AND payment_status <> 'paid' AND state = 'awaiting_gateway_payment'
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "awaiting_gateway_payment", query,
		orderID, at, historyEntry(models.HistoryPaymentFailed, at))
}

// AttachShipment stores the carrier code once. A second call for the same
// order fails with ErrInvalidStatusTransition.
func (s *OrderStore) AttachShipment(ctx context.Context, orderID uuid.UUID, shipmentCode string, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET shipment_code = $2, state = 'shipment_created',
		    status_history = status_history || $4::jsonb, updated_at = $3
		WHERE id = $1 AND shipment_code IS NULL AND state IN ('created', 'ready_to_ship')
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "created/ready_to_ship without shipment", query,
		orderID, shipmentCode, at, historyEntry(models.HistoryReadyToPick, at))
}

// Confirm records the admin approval. History is appended only the first time.
func (s *OrderStore) Confirm(ctx context.Context, orderID uuid.UUID, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET status_history = CASE WHEN confirmed_at IS NULL THEN status_history || $3::jsonb ELSE status_history END,
		    confirmed_at = COALESCE(confirmed_at, $2), updated_at = $2
		WHERE id = $1 AND state IN ('created', 'ready_to_ship', 'shipment_created', 'in_transit')
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "confirmable state", query,
		orderID, at, historyEntry(models.HistoryConfirmed, at))
}

func (s *OrderStore) Cancel(ctx context.Context, orderID uuid.UUID, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET state = 'cancelled', status_history = status_history || $3::jsonb, updated_at = $2
		WHERE id = $1 AND state IN ` + nonTerminalStates + `
		  AND NOT (payment_method = 'gateway' AND payment_status = 'paid')
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "non-terminal and not gateway-paid", query,
		orderID, at, historyEntry(models.HistoryCancel, at))
}

func (s *OrderStore) AddPaymentRetry(ctx context.Context, orderID uuid.UUID, txnRef string, at time.Time) (*Order, error) {
	retryJSON, err := json.Marshal([]models.PaymentRetry{{TxnRef: txnRef, CreatedAt: at}})
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE orders
		SET payment_retries = payment_retries || $2::jsonb, payment_status = 'pending_payment',
		    state = 'awaiting_gateway_payment', status_history = status_history || $4::jsonb, updated_at = $3
		WHERE id = $1 AND payment_method = 'gateway' AND payment_status <> 'paid'
		  AND state IN ('awaiting_gateway_payment', 'payment_failed')
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "unpaid gateway order awaiting payment", query,
		orderID, retryJSON, at, historyEntry(models.HistoryPendingRetry, at))
}

// ApplyCarrierStatus records a carrier status that differs from the last one seen.
func (s *OrderStore) ApplyCarrierStatus(ctx context.Context, orderID uuid.UUID, carrierStatus string, state models.OrderState, at time.Time) (*Order, error) {
	query := `
		UPDATE orders
		SET carrier_status = $2, state = $3, status_history = status_history || $5::jsonb, updated_at = $4
		WHERE id = $1 AND shipment_code IS NOT NULL AND state IN ('shipment_created', 'in_transit')
		  AND carrier_status IS DISTINCT FROM $2
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "in-flight shipment with a new carrier status", query,
		orderID, carrierStatus, string(state), at, historyEntry(carrierStatus, at))
}

// SetCODPaymentStatus flips the manual payment flag of a cash-on-delivery order.
func (s *OrderStore) SetCODPaymentStatus(ctx context.Context, orderID uuid.UUID, status models.PaymentStatus, at time.Time) (*Order, error) {
	label := models.HistoryPaid
	if status != models.PaymentPaid {
		label = models.HistoryMarkedUnpaid
	}
	query := `
		UPDATE orders
		SET payment_status = $2::text,
		    paid_at = CASE WHEN $2::text = 'paid' THEN $3::timestamptz ELSE NULL END,
		    status_history = status_history || $4::jsonb, updated_at = $3::timestamptz
		WHERE id = $1 AND payment_method = 'cod' AND payment_status <> $2::text
		RETURNING ` + orderColumns
	return s.transition(ctx, orderID, "cod order with a different payment status", query,
		orderID, string(status), at, historyEntry(label, at))
}

// transition runs a guarded UPDATE ... RETURNING. When no row matches it
// tells a missing order apart from a guard that did not hold.
func (s *OrderStore) transition(ctx context.Context, orderID uuid.UUID, expected string, query string, args ...any) (*Order, error) {
	order, err := scanOrder(s.pool.QueryRow(ctx, query, args...))
	if !errors.Is(err, ErrOrderNotFound) {
		return order, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check order existence: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}
	return nil, fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order         Order
		itemsJSON     []byte
		retriesJSON   []byte
		historyJSON   []byte
		paymentMethod string
		paymentStatus string
		state         string
		transactionNo pgtype.Text
		shipmentCode  pgtype.Text
		carrierStatus pgtype.Text
		paidAt        pgtype.Timestamptz
		confirmedAt   pgtype.Timestamptz
	)

	r := &order.Recipient
	err := row.Scan(
		&order.ID, &r.Name, &r.Phone, &r.Email, &r.Address,
		&r.ProvinceID, &r.DistrictID, &r.WardCode, &itemsJSON, &order.ShippingFee,
		&paymentMethod, &paymentStatus, &order.TxnRef, &retriesJSON,
		&transactionNo, &paidAt, &shipmentCode, &state, &carrierStatus,
		&historyJSON, &confirmedAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if err := json.Unmarshal(retriesJSON, &order.PaymentRetries); err != nil {
		return nil, fmt.Errorf("failed to decode payment retries: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &order.StatusHistory); err != nil {
		return nil, fmt.Errorf("failed to decode status history: %w", err)
	}

	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.State = models.OrderState(state)
	order.GatewayTransactionNo = transactionNo.String
	order.ShipmentCode = shipmentCode.String
	order.CarrierStatus = carrierStatus.String
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if confirmedAt.Valid {
		order.ConfirmedAt = confirmedAt.Time
	}
	return &order, nil
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func historyEntry(status string, at time.Time) []byte {
	// Marshalling a fixed struct cannot fail.
	payload, _ := json.Marshal([]models.StatusEntry{{Status: status, At: at}})
	return payload
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func nonNilRetries(retries []models.PaymentRetry) []models.PaymentRetry {
	if retries == nil {
		return []models.PaymentRetry{}
	}
	return retries
}

func nonNilHistory(history []models.StatusEntry) []models.StatusEntry {
	if history == nil {
		return []models.StatusEntry{}
	}
	return history
}
