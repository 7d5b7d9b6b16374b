package handlers

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/services"
)

type ipnResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// PaymentReturn handles the shopper's browser coming back from the gateway.
func (h *Handlers) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	result, err := h.paymentService.HandleCallback(ctx, services.CallbackSourceReturn, r.URL.Query())
	switch result.Outcome {
	case services.OutcomePaid, services.OutcomeDuplicate:
		if !result.Paid || result.Order == nil {
			break
		}
		id, sess := h.sessionFromRequest(ctx, r)
		if sess.OwnsOrder(result.Order.ID) {
			sess.RemoveProducts(orderProductIDs(result))
			sess.TrackOrder(result.Order.ID)
			if sess.PendingOrderID == result.Order.ID {
				sess.PendingOrderID = uuid.Nil
			}
			h.saveSession(ctx, id, sess)
		}
		http.Redirect(w, r, successURL(result.Order.ID), http.StatusSeeOther)
		return
	case services.OutcomePaymentFailed:
		target := "/cart?error=payment_failed"
		if result.Order != nil {
			target += "&order_id=" + url.QueryEscape(result.Order.ID.String())
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	case services.OutcomeInvalidSignature, services.OutcomeMalformed, services.OutcomeAmountMismatch:
		logger.Warn("payment return rejected", "outcome", result.Outcome)
		http.Error(w, "Payment verification failed", http.StatusBadRequest)
		return
	}

	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.redirectToCart(w, r, "payment_failed")
}

// PaymentIPN acknowledges the gateway's server-to-server notification. The
// gateway expects HTTP 200 with the result carried in RspCode.
func (h *Handlers) PaymentIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	values := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil && len(r.PostForm) > 0 {
			values = r.PostForm
		}
	}

	result, _ := h.paymentService.HandleCallback(ctx, services.CallbackSourceIPN, values)
	h.writeJSON(w, r, http.StatusOK, ipnResponse{
		RspCode: result.RspCode,
		Message: result.Message(),
	})
}

func orderProductIDs(result *services.CallbackResult) []string {
	ids := make([]string, 0, len(result.Order.Items))
	for _, item := range result.Order.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
