package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/carrier"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/session"
)

type cartView struct {
	Lines    []lineView `json:"lines"`
	Subtotal int64      `json:"subtotal"`
}

// Cart returns the session cart priced against the current catalog. Lines
// whose product is gone are listed with a zero price.
func (h *Handlers) Cart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, sess := h.sessionFromRequest(ctx, r)
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, r, http.StatusOK, h.cartView(r, sess))
}

func (h *Handlers) cartView(r *http.Request, sess *session.Data) cartView {
	view := cartView{Lines: make([]lineView, 0, len(sess.Cart))}
	for _, line := range sess.Cart {
		lv := lineView{ProductID: line.ProductID, Quantity: line.Quantity}
		if product, err := h.catalog.FindByID(r.Context(), line.ProductID); err == nil {
			lv.Code = product.Code
			lv.Name = product.Name
			lv.Thumbnail = product.Thumbnail
			lv.UnitPrice = product.Price
			lv.LineTotal = product.Price * int64(line.Quantity)
		}
		view.Subtotal += lv.LineTotal
		view.Lines = append(view.Lines, lv)
	}
	return view
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	id, sess := h.sessionFromRequest(ctx, r)
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	values, err := requestValues(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	productID := strings.TrimSpace(values.Get("product_id"))
	if productID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.catalog.FindByID(ctx, productID); err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			http.Error(w, "Product not found", http.StatusNotFound)
			return
		}
		logger.Error("failed to look up product", "product_id", productID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sess.AddToCart(productID, catalog.ParseQuantity(values.Get("quantity")))
	h.saveSession(ctx, id, sess)

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusOK, h.cartView(r, sess))
		return
	}
	http.Redirect(w, r, "/cart", http.StatusSeeOther)
}

// ShippingFee quotes the selected cart lines to a destination.
func (h *Handlers) ShippingFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, sess := h.sessionFromRequest(ctx, r)
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	districtID, err := strconv.Atoi(strings.TrimSpace(query.Get("district_id")))
	if err != nil || districtID <= 0 {
		http.Error(w, "district_id is required", http.StatusBadRequest)
		return
	}
	wardCode := strings.TrimSpace(query.Get("ward_code"))
	if wardCode == "" {
		http.Error(w, "ward_code is required", http.StatusBadRequest)
		return
	}

	lines := checkoutLines(sess.SelectLines(selectedProductIDs(query)))
	if len(lines) == 0 {
		http.Error(w, "Cart is empty", http.StatusBadRequest)
		return
	}

	totals, err := h.checkoutService.Quote(ctx, carrier.Destination{DistrictID: districtID, WardCode: wardCode}, lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, totals)
}

// Checkout creates an order from the selected cart lines. COD orders go
// straight to the success page, gateway orders to the payment redirect.
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	id, sess := h.sessionFromRequest(ctx, r)
	if sess == nil {
		http.Error(w, "Session unavailable", http.StatusInternalServerError)
		return
	}

	values, err := requestValues(r)
	if err != nil {
		h.redirectToCart(w, r, "invalid_request")
		return
	}

	input := services.CheckoutInput{
		Recipient:     recipientFromValues(values),
		Lines:         checkoutLines(sess.SelectLines(selectedProductIDs(values))),
		PaymentMethod: models.PaymentMethod(strings.ToLower(strings.TrimSpace(values.Get("payment_method")))),
		ClientIP:      clientIP(r),
	}

	result, err := h.checkoutService.Checkout(ctx, input)
	if err != nil {
		logger.Warn("checkout failed", "error", err)
		if wantsJSON(r) {
			h.writeError(w, r, err)
			return
		}
		h.redirectToCart(w, r, checkoutErrorCode(err))
		return
	}

	order := result.Order
	sess.TrackOrder(order.ID)
	if order.PaymentMethod == models.PaymentMethodCOD {
		sess.RemoveProducts(result.PurchasedProductIDs())
		sess.PendingOrderID = uuid.Nil
	} else {
		sess.PendingOrderID = order.ID
	}
	h.saveSession(ctx, id, sess)

	logger.With(logging.OrderAttrs(order)...).Info("checkout completed")

	if wantsJSON(r) {
		h.writeJSON(w, r, http.StatusCreated, map[string]any{
			"order":       newOrderView(order),
			"totals":      result.Totals,
			"payment_url": result.PaymentURL,
		})
		return
	}
	if result.PaymentURL != "" {
		http.Redirect(w, r, result.PaymentURL, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, successURL(order.ID), http.StatusSeeOther)
}

// CheckoutSuccess shows an order to the shopper that placed it.
func (h *Handlers) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, ok := parseOrderID(r.URL.Query().Get("order_id"))
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	order, err := h.orderService.Get(ctx, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_, sess := h.sessionFromRequest(ctx, r)
	if !sess.OwnsOrder(order.ID) {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, r, http.StatusOK, newOrderView(order))
}

func (h *Handlers) redirectToCart(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/cart?error="+url.QueryEscape(code), http.StatusSeeOther)
}

func successURL(orderID uuid.UUID) string {
	return "/checkout/success?order_id=" + url.QueryEscape(orderID.String())
}

func checkoutErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "invalid_checkout"
	case errors.Is(err, services.ErrDependency):
		return "unavailable"
	default:
		return "checkout_failed"
	}
}

func recipientFromValues(values url.Values) models.Recipient {
	return models.Recipient{
		Name:       strings.TrimSpace(values.Get("name")),
		Phone:      strings.TrimSpace(values.Get("phone")),
		Email:      strings.TrimSpace(values.Get("email")),
		Address:    strings.TrimSpace(values.Get("address")),
		ProvinceID: atoiOrZero(values.Get("province_id")),
		DistrictID: atoiOrZero(values.Get("district_id")),
		WardCode:   strings.TrimSpace(values.Get("ward_code")),
	}
}

func atoiOrZero(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

// selectedProductIDs accepts repeated product_ids values or a comma list.
func selectedProductIDs(values url.Values) []string {
	var ids []string
	for _, raw := range values["product_ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func checkoutLines(cart []session.CartLine) []services.CheckoutLine {
	lines := make([]services.CheckoutLine, 0, len(cart))
	for _, line := range cart {
		lines = append(lines, services.CheckoutLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return lines
}
