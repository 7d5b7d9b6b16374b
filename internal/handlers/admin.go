package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

type adminListView struct {
	Orders     []orderView `json:"orders"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
}

// AdminListOrders returns a filtered page of orders, newest first.
func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := adminListQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.adminService.List(ctx, query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view := adminListView{
		Orders:     make([]orderView, 0, len(result.Orders)),
		Total:      result.Total,
		Page:       result.Page,
		Limit:      result.Limit,
		TotalPages: result.TotalPages(),
	}
	for _, order := range result.Orders {
		view.Orders = append(view.Orders, newOrderView(order))
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

func adminListQuery(r *http.Request) (services.AdminListQuery, error) {
	values := r.URL.Query()
	query := services.AdminListQuery{
		PaymentMethod: models.PaymentMethod(strings.TrimSpace(values.Get("payment_method"))),
		PaymentStatus: models.PaymentStatus(strings.TrimSpace(values.Get("payment_status"))),
		State:         models.OrderState(strings.TrimSpace(values.Get("state"))),
	}

	if raw := strings.TrimSpace(values.Get("status")); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return query, errInvalidParam("status")
		}
		query.LegacyStatus = &status
	}
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return query, errInvalidParam("page")
		}
		query.Page = page
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return query, errInvalidParam("limit")
		}
		query.Limit = limit
	}
	return query, nil
}

type invalidParamError string

func (e invalidParamError) Error() string {
	return "invalid " + string(e)
}

func errInvalidParam(name string) error {
	return invalidParamError(name)
}

func (h *Handlers) AdminOrderDetail(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	order, err := h.adminService.Detail(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newOrderView(order))
}

// AdminApproveOrder confirms the order and creates its carrier shipment.
func (h *Handlers) AdminApproveOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	order, err := h.adminService.Approve(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newOrderView(order))
}

func (h *Handlers) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	order, err := h.adminService.Cancel(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newOrderView(order))
}

// AdminSetPaymentStatus toggles a COD order between unpaid and paid.
func (h *Handlers) AdminSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	values, err := requestValues(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	status := models.PaymentStatus(strings.TrimSpace(values.Get("payment_status")))
	if status == "" {
		http.Error(w, "payment_status is required", http.StatusBadRequest)
		return
	}

	order, err := h.adminService.SetPaymentStatus(r.Context(), orderID, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newOrderView(order))
}

// AdminSyncOrder pulls the live carrier status for one order.
func (h *Handlers) AdminSyncOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseOrderID(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}

	order, changed, err := h.adminService.Sync(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"order":   newOrderView(order),
		"changed": changed,
	})
}
