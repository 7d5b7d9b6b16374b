package handlers

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/session"
)

// MetricsContext puts a meter on the context that already names the request,
// the order it targets and the shopper's session, so order and payment
// counters recorded by services can be sliced by them.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		_, sess := h.sessionFromRequest(ctx, r)

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(meterAttrs(r, sess)...)

		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}

func meterAttrs(r *http.Request, sess *session.Data) []attribute.Builder {
	attrs := []attribute.Builder{
		attribute.String("http.request_id", requestIDFromRequest(r)),
		attribute.String("http.method", r.Method),
	}
	if route := routeLabel(r); route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	if id := mux.Vars(r)["id"]; id != "" {
		attrs = append(attrs, attribute.String("order.id", id))
	}
	if strings.HasPrefix(r.URL.Path, "/payments/") {
		if txnRef := r.URL.Query().Get("vnp_TxnRef"); txnRef != "" {
			attrs = append(attrs, attribute.String("payment.txn_ref", txnRef))
		}
	}
	if sess != nil {
		attrs = append(attrs,
			attribute.Int("cart.lines", len(sess.Cart)),
			attribute.Int("session.orders", len(sess.OrderIDs)),
		)
		if sess.PendingOrderID != uuid.Nil {
			attrs = append(attrs, attribute.String("order.pending_id", sess.PendingOrderID.String()))
		}
	}
	return attrs
}
