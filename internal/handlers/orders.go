package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RetryPayment mints a fresh gateway reference for an unpaid order the
// shopper owns and sends them back to the gateway.
func (h *Handlers) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	id, sess := h.sessionFromRequest(ctx, r)
	order, err := h.orderService.Get(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !sess.OwnsOrder(order.ID) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	result, err := h.orderService.RetryPayment(ctx, orderID, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sess.PendingOrderID = orderID
	h.saveSession(ctx, id, sess)

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusOK, map[string]any{
			"order_id":    orderID,
			"txn_ref":     result.TxnRef,
			"payment_url": result.PaymentURL,
		})
		return
	}
	http.Redirect(w, r, result.PaymentURL, http.StatusSeeOther)
}

// CancelOrder lets the shopper cancel their own order.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	_, sess := h.sessionFromRequest(ctx, r)
	if !sess.OwnsOrder(orderID) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	current, err := h.orderService.Get(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.CancelForCustomer(ctx, orderID, current.Recipient.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusOK, newOrderView(order))
		return
	}
	http.Redirect(w, r, successURL(order.ID), http.StatusSeeOther)
}
