package db

import (
	"errors"

	"github.com/gitshopapp/storefront/internal/models"
)

type Order = models.Order

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// OrderFilter narrows admin order listings. Zero values are ignored.
type OrderFilter struct {
	PaymentMethod models.PaymentMethod
	PaymentStatus models.PaymentStatus
	States        []models.OrderState
	Legacy        *models.LegacyStatusFilter
	Email         string
	Limit         int
	Offset        int
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Normalized clamps Limit and Offset into the accepted range.
func (f OrderFilter) Normalized() OrderFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
