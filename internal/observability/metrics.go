package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterContextKey struct{}

// WithMeter stores meter on ctx so handlers and services below the
// middleware count against the request's scope.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// RecordOrderTransition counts one state machine call in Prometheus and on
// the context meter. outcome is applied, noop, conflict, invalid or error.
func RecordOrderTransition(ctx context.Context, transition, outcome string) {
	OrderTransitions.WithLabelValues(transition, outcome).Inc()
	MeterFromContext(ctx).Count("order.transition", 1, sentry.WithAttributes(
		attribute.String("transition", transition),
		attribute.String("outcome", outcome),
	))
}

// RecordPaymentCallback counts a gateway return or IPN by the acknowledgement
// code it produced.
func RecordPaymentCallback(ctx context.Context, source, outcome, rspCode string) {
	PaymentCallbacks.WithLabelValues(source, outcome).Inc()
	MeterFromContext(ctx).Count("payment.callback", 1, sentry.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
		attribute.String("rsp_code", rspCode),
	))
}

// RecordCarrierCall observes one carrier API round trip.
func RecordCarrierCall(ctx context.Context, operation, outcome string, seconds float64) {
	CarrierRequestDuration.WithLabelValues(operation, outcome).Observe(seconds)
	if outcome != "success" {
		MeterFromContext(ctx).Count("carrier.request.failed", 1, sentry.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}
