// Package events publishes order lifecycle events to Kafka.
package events

import (
	"time"

	"github.com/gitshopapp/storefront/internal/models"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderPaid          = "order.paid"
	TypeOrderPaymentFailed = "order.payment_failed"
	TypeOrderConfirmed     = "order.confirmed"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderCarrierSynced = "order.carrier_synced"
)

type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	State         string    `json:"state"`
	PaymentMethod string    `json:"payment_method"`
	PaymentStatus string    `json:"payment_status"`
	Total         int64     `json:"total"`
	ShipmentCode  string    `json:"shipment_code,omitempty"`
	CarrierStatus string    `json:"carrier_status,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewOrderEvent(eventType string, order *models.Order, actor string, at time.Time) OrderEvent {
	return OrderEvent{
		Type:          eventType,
		OrderID:       order.ID.String(),
		State:         string(order.State),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		Total:         order.Total(),
		ShipmentCode:  order.ShipmentCode,
		CarrierStatus: order.CarrierStatus,
		Actor:         actor,
		OccurredAt:    at.UTC(),
	}
}
