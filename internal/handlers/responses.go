package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

type lineView struct {
	ProductID string `json:"product_id"`
	Code      string `json:"code,omitempty"`
	Name      string `json:"name"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// orderView is the JSON shape of an order. Status and StatusText carry the
// legacy numeric pair next to the internal state.
type orderView struct {
	ID                   uuid.UUID             `json:"id"`
	State                models.OrderState     `json:"state"`
	Status               int                   `json:"status"`
	StatusText           string                `json:"status_text"`
	PaymentMethod        models.PaymentMethod  `json:"payment_method"`
	PaymentStatus        models.PaymentStatus  `json:"payment_status"`
	TxnRef               string                `json:"txn_ref"`
	GatewayTransactionNo string                `json:"gateway_transaction_no,omitempty"`
	ShipmentCode         string                `json:"shipment_code,omitempty"`
	CarrierStatus        string                `json:"carrier_status,omitempty"`
	Recipient            models.Recipient      `json:"recipient"`
	Items                []lineView            `json:"items"`
	Subtotal             int64                 `json:"subtotal"`
	ShippingFee          int64                 `json:"shipping_fee"`
	Total                int64                 `json:"total"`
	CODAmount            int64                 `json:"cod_amount"`
	StatusHistory        []models.StatusEntry  `json:"status_history"`
	PaymentRetries       []models.PaymentRetry `json:"payment_retries,omitempty"`
	PaidAt               *time.Time            `json:"paid_at,omitempty"`
	ConfirmedAt          *time.Time            `json:"confirmed_at,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

func newOrderView(order *models.Order) orderView {
	status, statusText := order.LegacyStatus()
	items := make([]lineView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, lineView{
			ProductID: item.ProductID,
			Code:      item.Code,
			Name:      item.Name,
			Thumbnail: item.Thumbnail,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
		})
	}

	return orderView{
		ID:                   order.ID,
		State:                order.State,
		Status:               status,
		StatusText:           statusText,
		PaymentMethod:        order.PaymentMethod,
		PaymentStatus:        order.PaymentStatus,
		TxnRef:               order.TxnRef,
		GatewayTransactionNo: order.GatewayTransactionNo,
		ShipmentCode:         order.ShipmentCode,
		CarrierStatus:        order.CarrierStatus,
		Recipient:            order.Recipient,
		Items:                items,
		Subtotal:             order.Subtotal(),
		ShippingFee:          order.ShippingFee,
		Total:                order.Total(),
		CODAmount:            order.CODAmount(),
		StatusHistory:        order.StatusHistory,
		PaymentRetries:       order.PaymentRetries,
		PaidAt:               optionalTime(order.PaidAt),
		ConfirmedAt:          optionalTime(order.ConfirmedAt),
		CreatedAt:            order.CreatedAt,
		UpdatedAt:            order.UpdatedAt,
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// errorStatus maps the service error taxonomy onto an HTTP status and a
// message safe to show the caller.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrSignature):
		return http.StatusBadRequest, "Payment verification failed"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrDependency):
		return http.StatusBadGateway, "Upstream service unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	logger := h.loggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}

	if wantsJSON(r) {
		h.writeJSON(w, r, status, map[string]string{"error": message})
		return
	}
	http.Error(w, message, status)
}

func parseOrderID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
