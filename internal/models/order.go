package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// OrderState is the single internal lifecycle state of an order.
type OrderState string

const (
	StateCreated                OrderState = "created"
	StateAwaitingGatewayPayment OrderState = "awaiting_gateway_payment"
	StateReadyToShip            OrderState = "ready_to_ship"
	StateShipmentCreated        OrderState = "shipment_created"
	StateInTransit              OrderState = "in_transit"
	StateDelivered              OrderState = "delivered"
	StateCancelled              OrderState = "cancelled"
	StatePaymentFailed          OrderState = "payment_failed"
)

// NonTerminalStates lists every state an order can still leave.
var NonTerminalStates = []OrderState{
	StateCreated,
	StateAwaitingGatewayPayment,
	StateReadyToShip,
	StateShipmentCreated,
	StateInTransit,
}

// InFlightStates are the states polled against the carrier.
var InFlightStates = []OrderState{
	StateShipmentCreated,
	StateInTransit,
}

func (s OrderState) IsTerminal() bool {
	switch s {
	case StateDelivered, StateCancelled, StatePaymentFailed:
		return true
	default:
		return false
	}
}

func (s OrderState) Valid() bool {
	switch s {
	case StateCreated, StateAwaitingGatewayPayment, StateReadyToShip, StateShipmentCreated,
		StateInTransit, StateDelivered, StateCancelled, StatePaymentFailed:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "cod"
	PaymentMethodGateway PaymentMethod = "gateway"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodGateway
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPending PaymentStatus = "pending_payment"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentFailed:
		return true
	default:
		return false
	}
}

// History entry labels recorded in Order.StatusHistory.
const (
	HistoryPendingPayment = "pending_payment"
	HistoryPendingRetry   = "pending_retry"
	HistoryReadyToPick    = "ready_to_pick"
	HistoryConfirmed      = "confirmed"
	HistoryPaid           = "paid"
	HistoryPaymentFailed  = "payment_failed"
	HistoryCancel         = "cancel"
	HistoryMarkedUnpaid   = "unpaid"
)

// DefaultItemWeight is the per-unit weight in grams used when the catalog has none.
const DefaultItemWeight = 500

type Recipient struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	ProvinceID int    `json:"province_id"`
	DistrictID int    `json:"district_id"`
	WardCode   string `json:"ward_code"`
}

// LineItem is a snapshot of a catalog product at checkout time.
type LineItem struct {
	ProductID  string `json:"product_id"`
	Code       string `json:"code,omitempty"`
	Name       string `json:"name"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	UnitWeight int    `json:"unit_weight"`
}

func (li LineItem) LineTotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// Weight returns quantity times unit weight, substituting defaultWeight for a zero snapshot.
func (li LineItem) Weight(defaultWeight int) int {
	w := li.UnitWeight
	if w <= 0 {
		w = defaultWeight
	}
	return w * li.Quantity
}

type StatusEntry struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type PaymentRetry struct {
	TxnRef    string    `json:"txn_ref"`
	CreatedAt time.Time `json:"created_at"`
}

type Order struct {
	ID                   uuid.UUID      `json:"id"`
	Recipient            Recipient      `json:"recipient"`
	Items                []LineItem     `json:"items"`
	ShippingFee          int64          `json:"shipping_fee"`
	PaymentMethod        PaymentMethod  `json:"payment_method"`
	PaymentStatus        PaymentStatus  `json:"payment_status"`
	TxnRef               string         `json:"txn_ref"`
	PaymentRetries       []PaymentRetry `json:"payment_retries"`
	GatewayTransactionNo string         `json:"gateway_transaction_no,omitempty"`
	PaidAt               time.Time      `json:"paid_at"`
	ShipmentCode         string         `json:"shipment_code,omitempty"`
	State                OrderState     `json:"state"`
	CarrierStatus        string         `json:"carrier_status,omitempty"`
	StatusHistory        []StatusEntry  `json:"status_history"`
	ConfirmedAt          time.Time      `json:"confirmed_at"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (o *Order) Subtotal() int64 {
	var subtotal int64
	for _, item := range o.Items {
		subtotal += item.LineTotal()
	}
	return subtotal
}

// Total is always derived from the line items and the shipping fee.
func (o *Order) Total() int64 {
	return o.Subtotal() + o.ShippingFee
}

func (o *Order) TotalWeight(defaultWeight int) int {
	total := 0
	for _, item := range o.Items {
		total += item.Weight(defaultWeight)
	}
	return total
}

func (o *Order) HasShipment() bool {
	return o.ShipmentCode != ""
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid
}

// CODAmount is what the carrier collects on delivery.
func (o *Order) CODAmount() int64 {
	if o.IsPaid() {
		return 0
	}
	return o.Total()
}

// MatchesTxnRef reports whether ref is the primary or any retry reference.
func (o *Order) MatchesTxnRef(ref string) bool {
	if ref == "" {
		return false
	}
	if o.TxnRef == ref {
		return true
	}
	for _, retry := range o.PaymentRetries {
		if retry.TxnRef == ref {
			return true
		}
	}
	return false
}

func (o *Order) LastHistoryStatus() string {
	if len(o.StatusHistory) == 0 {
		return ""
	}
	return o.StatusHistory[len(o.StatusHistory)-1].Status
}

// Legacy numeric status codes shown to storefront and admin clients.
const (
	LegacyStatusCancelled = 0
	LegacyStatusConfirmed = 1
	LegacyStatusReady     = 2
)

// LegacyStatus translates the internal state into the numeric code and
// status text pair used by existing clients.
func (o *Order) LegacyStatus() (int, string) {
	switch o.State {
	case StateAwaitingGatewayPayment:
		return LegacyStatusCancelled, HistoryPendingPayment
	case StateReadyToShip:
		if o.IsPaid() && o.PaymentMethod == PaymentMethodGateway {
			return LegacyStatusConfirmed, HistoryPaid
		}
		return LegacyStatusReady, HistoryReadyToPick
	case StateShipmentCreated:
		return LegacyStatusConfirmed, HistoryConfirmed
	case StateInTransit:
		if o.CarrierStatus != "" {
			return LegacyStatusReady, o.CarrierStatus
		}
		return LegacyStatusReady, HistoryReadyToPick
	case StateDelivered:
		return LegacyStatusConfirmed, "delivered"
	case StateCancelled:
		if o.CarrierStatus != "" && o.LastHistoryStatus() == o.CarrierStatus {
			return LegacyStatusCancelled, o.CarrierStatus
		}
		return LegacyStatusCancelled, HistoryCancel
	case StatePaymentFailed:
		return LegacyStatusCancelled, HistoryPaymentFailed
	default:
		return LegacyStatusReady, string(StateCreated)
	}
}

// LegacyStatusFilter is the stored-field form of a legacy numeric code.
// Orders in States always report Code. When MatchReadyToShip is set,
// ready_to_ship orders report Code only if being a paid gateway order equals
// ReadyToShipPaidGateway.
type LegacyStatusFilter struct {
	Code                   int
	States                 []OrderState
	MatchReadyToShip       bool
	ReadyToShipPaidGateway bool
}

// LegacyFilterFor returns the filter for a legacy code. ok is false for
// unknown codes.
func LegacyFilterFor(code int) (filter LegacyStatusFilter, ok bool) {
	switch code {
	case LegacyStatusCancelled:
		return LegacyStatusFilter{
			Code:   code,
			States: []OrderState{StateAwaitingGatewayPayment, StateCancelled, StatePaymentFailed},
		}, true
	case LegacyStatusConfirmed:
		return LegacyStatusFilter{
			Code:                   code,
			States:                 []OrderState{StateShipmentCreated, StateDelivered},
			MatchReadyToShip:       true,
			ReadyToShipPaidGateway: true,
		}, true
	case LegacyStatusReady:
		return LegacyStatusFilter{
			Code:             code,
			States:           []OrderState{StateCreated, StateInTransit},
			MatchReadyToShip: true,
		}, true
	default:
		return LegacyStatusFilter{}, false
	}
}

// AllStates lists every state that can report the code, ready_to_ship
// included when it may.
func (f LegacyStatusFilter) AllStates() []OrderState {
	states := slices.Clone(f.States)
	if f.MatchReadyToShip {
		states = append(states, StateReadyToShip)
	}
	return states
}

// Matches reports whether o currently reports the filter's code.
func (f LegacyStatusFilter) Matches(o *Order) bool {
	code, _ := o.LegacyStatus()
	return code == f.Code
}
