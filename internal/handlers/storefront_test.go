package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

func checkoutForm(method string, productIDs ...string) url.Values {
	form := url.Values{
		"name":           {"Nguyen Van A"},
		"phone":          {"0900000000"},
		"email":          {"buyer@example.com"},
		"address":        {"1 Le Loi"},
		"province_id":    {"202"},
		"district_id":    {"1442"},
		"ward_code":      {"20101"},
		"payment_method": {method},
	}
	for _, id := range productIDs {
		form.Add("product_ids", id)
	}
	return form
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAddCartItem_MergesQuantity(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t)
	sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 1}}}

	req := withSession(postForm("/cart/items", url.Values{"product_id": {"tea"}, "quantity": {"2"}}), sess)
	rec := httptest.NewRecorder()

	h.AddCartItem(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusSeeOther)
	}
	if len(sess.Cart) != 1 || sess.Cart[0].Quantity != 3 {
		t.Fatalf("unexpected cart: %+v", sess.Cart)
	}
}

func TestAddCartItem_JSONUnknownProduct(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t)
	sess := &session.Data{}

	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"nope","quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	req = withSession(req, sess)
	rec := httptest.NewRecorder()

	h.AddCartItem(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNotFound)
	}
	if len(sess.Cart) != 0 {
		t.Fatalf("expected empty cart, got %+v", sess.Cart)
	}
}

func TestCart_PricesLinesFromCatalog(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t)
	sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 2}, {ProductID: "cup", Quantity: 1}}}

	req := withSession(httptest.NewRequest(http.MethodGet, "/cart", nil), sess)
	rec := httptest.NewRecorder()

	h.Cart(rec, req)

	var view cartView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode cart: %v", err)
	}
	if view.Subtotal != 45200 {
		t.Fatalf("unexpected subtotal: got=%d want=%d", view.Subtotal, 45200)
	}
	if len(view.Lines) != 2 || view.Lines[0].LineTotal != 200 {
		t.Fatalf("unexpected lines: %+v", view.Lines)
	}
}

func TestShippingFee_QuotesSelectedLines(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t)
	deps.checkout.totals = services.Totals{Subtotal: 200, ShippingFee: 30, Total: 230, Weight: 600}
	sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 2}, {ProductID: "cup", Quantity: 1}}}

	req := withSession(httptest.NewRequest(http.MethodGet, "/shipping/fee?district_id=1442&ward_code=20101&product_ids=tea", nil), sess)
	rec := httptest.NewRecorder()

	h.ShippingFee(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusOK)
	}
	if deps.checkout.dest.DistrictID != 1442 || deps.checkout.dest.WardCode != "20101" {
		t.Fatalf("unexpected destination: %+v", deps.checkout.dest)
	}
	if len(deps.checkout.lines) != 1 || deps.checkout.lines[0].ProductID != "tea" {
		t.Fatalf("unexpected quoted lines: %+v", deps.checkout.lines)
	}
	var totals services.Totals
	if err := json.NewDecoder(rec.Body).Decode(&totals); err != nil {
		t.Fatalf("failed to decode totals: %v", err)
	}
	if totals.Total != 230 {
		t.Fatalf("unexpected total: got=%d want=%d", totals.Total, 230)
	}
}

func TestShippingFee_RejectsMissingDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing district", query: "ward_code=20101"},
		{name: "bad district", query: "district_id=abc&ward_code=20101"},
		{name: "missing ward", query: "district_id=1442"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newTestHandlers(t)
			sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 1}}}
			req := withSession(httptest.NewRequest(http.MethodGet, "/shipping/fee?"+tt.query, nil), sess)
			rec := httptest.NewRecorder()

			h.ShippingFee(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCheckout_CODRedirectsToSuccessAndClearsPurchasedLines(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t)
	order := testOrder(models.PaymentMethodCOD, models.StateReadyToShip)
	deps.checkout.result = &services.CheckoutResult{Order: order}
	sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 2}, {ProductID: "cup", Quantity: 1}}}

	req := withSession(postForm("/checkout", checkoutForm("cod", "tea")), sess)
	rec := httptest.NewRecorder()

	h.Checkout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusSeeOther)
	}
	if location := rec.Header().Get("Location"); location != successURL(order.ID) {
		t.Fatalf("unexpected redirect: %q", location)
	}
	if deps.checkout.input.PaymentMethod != models.PaymentMethodCOD {
		t.Fatalf("unexpected payment method: %q", deps.checkout.input.PaymentMethod)
	}
	if deps.checkout.input.Recipient.DistrictID != 1442 || deps.checkout.input.Recipient.WardCode != "20101" {
		t.Fatalf("unexpected recipient: %+v", deps.checkout.input.Recipient)
	}
	if len(deps.checkout.input.Lines) != 1 || deps.checkout.input.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", deps.checkout.input.Lines)
	}
	if len(sess.Cart) != 1 || sess.Cart[0].ProductID != "cup" {
		t.Fatalf("expected only the unpurchased line to remain, got %+v", sess.Cart)
	}
	if !sess.OwnsOrder(order.ID) || sess.PendingOrderID != uuid.Nil {
		t.Fatalf("expected placed order to be tracked, got %+v", sess)
	}
}

func TestCheckout_GatewayRedirectsToPaymentURL(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t)
	order := testOrder(models.PaymentMethodGateway, models.StateAwaitingGatewayPayment)
	deps.checkout.result = &services.CheckoutResult{Order: order, PaymentURL: "https://pay.example/vpcpay.html?vnp_TxnRef=x"}
	sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 2}}}

	req := withSession(postForm("/checkout", checkoutForm("gateway")), sess)
	rec := httptest.NewRecorder()

	h.Checkout(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusSeeOther)
	}
	if location := rec.Header().Get("Location"); location != deps.checkout.result.PaymentURL {
		t.Fatalf("unexpected redirect: %q", location)
	}
	if sess.PendingOrderID != order.ID {
		t.Fatalf("expected pending order id %s, got %s", order.ID, sess.PendingOrderID)
	}
	if len(sess.Cart) != 1 {
		t.Fatalf("cart must be kept until payment succeeds, got %+v", sess.Cart)
	}
	if len(sess.OrderIDs) != 1 || sess.OrderIDs[0] != order.ID {
		t.Fatalf("expected gateway order to be tracked, got %v", sess.OrderIDs)
	}
}

func TestCheckout_FailureRedirectsToCart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "validation", err: fmt.Errorf("%w: recipient phone is required", services.ErrValidation), code: "invalid_checkout"},
		{name: "carrier down", err: fmt.Errorf("%w: fee quote failed", services.ErrDependency), code: "unavailable"},
		{name: "unexpected", err: errors.New("boom"), code: "checkout_failed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, deps := newTestHandlers(t)
			deps.checkout.err = tt.err
			sess := &session.Data{Cart: []session.CartLine{{ProductID: "tea", Quantity: 2}}}

			req := withSession(postForm("/checkout", checkoutForm("cod")), sess)
			rec := httptest.NewRecorder()

			h.Checkout(rec, req)

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusSeeOther)
			}
			if location := rec.Header().Get("Location"); location != "/cart?error="+tt.code {
				t.Fatalf("unexpected redirect: %q", location)
			}
			if len(sess.Cart) != 1 {
				t.Fatalf("cart must be untouched, got %+v", sess.Cart)
			}
		})
	}
}

func TestCheckoutSuccess_RequiresOwningSession(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t)
	order := testOrder(models.PaymentMethodCOD, models.StateReadyToShip)
	deps.orders.order = order

	tests := []struct {
		name string
		sess *session.Data
		want int
	}{
		{name: "owner by placed order", sess: &session.Data{OrderIDs: []uuid.UUID{order.ID}}, want: http.StatusOK},
		{name: "owner by pending order", sess: &session.Data{PendingOrderID: order.ID}, want: http.StatusOK},
		{name: "stranger", sess: &session.Data{OrderIDs: []uuid.UUID{uuid.New()}}, want: http.StatusNotFound},
		{name: "empty session", sess: &session.Data{}, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := withSession(httptest.NewRequest(http.MethodGet, successURL(order.ID), nil), tt.sess)
			rec := httptest.NewRecorder()

			h.CheckoutSuccess(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, tt.want)
			}
		})
	}
}

func TestCheckoutSuccess_ExposesLegacyStatus(t *testing.T) {
	t.Parallel()

	h, deps := newTestHandlers(t)
	order := testOrder(models.PaymentMethodCOD, models.StateReadyToShip)
	deps.orders.order = order

	req := withSession(httptest.NewRequest(http.MethodGet, successURL(order.ID), nil), &session.Data{OrderIDs: []uuid.UUID{order.ID}})
	rec := httptest.NewRecorder()

	h.CheckoutSuccess(rec, req)

	var view orderView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if view.Status != models.LegacyStatusReady || view.StatusText != models.HistoryReadyToPick {
		t.Fatalf("unexpected legacy status: %d %q", view.Status, view.StatusText)
	}
	if view.Subtotal != 200 || view.Total != 230 || view.CODAmount != 230 {
		t.Fatalf("unexpected money fields: %+v", view)
	}
}

func TestCheckoutSuccess_RejectsBadOrderID(t *testing.T) {
	t.Parallel()

	h, _ := newTestHandlers(t)

	for _, raw := range []string{"", "not-a-uuid", uuid.Nil.String()} {
		req := withSession(httptest.NewRequest(http.MethodGet, "/checkout/success?order_id="+url.QueryEscape(raw), nil), &session.Data{})
		rec := httptest.NewRecorder()

		h.CheckoutSuccess(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("unexpected status for %q: got=%d want=%d", raw, rec.Code, http.StatusNotFound)
		}
	}
}
