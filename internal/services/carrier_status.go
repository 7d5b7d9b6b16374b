package services

import (
	"strings"

	"github.com/gitshopapp/storefront/internal/models"
)

// failedCarrierStatuses end the shipment without delivery.
var failedCarrierStatuses = map[string]struct{}{
	"cancel":              {},
	"waiting_to_return":   {},
	"return":              {},
	"return_transporting": {},
	"returned":            {},
	"lost":                {},
	"damage":              {},
	"exception":           {},
}

// CarrierState maps a raw carrier status onto the internal state. Unknown
// statuses mean the parcel is still moving.
func CarrierState(carrierStatus string) models.OrderState {
	status := strings.ToLower(strings.TrimSpace(carrierStatus))
	if status == "delivered" {
		return models.StateDelivered
	}
	if _, failed := failedCarrierStatuses[status]; failed {
		return models.StateCancelled
	}
	return models.StateInTransit
}
