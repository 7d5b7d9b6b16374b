package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/gitshopapp/storefront/internal/models"
)

type loggerKey struct{}

// WithLogger returns a context that carries the provided logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, ensureLogger(logger))
}

// FromContext returns the logger stored in context, then fallback, then a
// logger that discards everything.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return ensureLogger(fallback)
}

// WithOrder scopes the context logger to order, so every later line logged
// from ctx names the order and where it stands.
func WithOrder(ctx context.Context, fallback *slog.Logger, order *models.Order) (context.Context, *slog.Logger) {
	logger := FromContext(ctx, fallback)
	if order == nil {
		return WithLogger(ctx, logger), logger
	}
	logger = logger.With(OrderAttrs(order)...)
	return WithLogger(ctx, logger), logger
}

// OrderAttrs are the attributes that identify an order in a log line.
// Recipient contact details are left out.
func OrderAttrs(order *models.Order) []any {
	if order == nil {
		return nil
	}
	attrs := []any{
		"order_id", order.ID.String(),
		"state", string(order.State),
		"payment_method", string(order.PaymentMethod),
		"payment_status", string(order.PaymentStatus),
	}
	if order.ShipmentCode != "" {
		attrs = append(attrs, "shipment_code", order.ShipmentCode)
	}
	return attrs
}

func ensureLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
