package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/google/uuid"
)

type OrdersHandler struct {
	orders  *service.OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders *service.OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type OrderListResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter, ok := parsePaging(w, r.URL.Query())
	if !ok {
		return
	}

	orders, err := h.orders.ListUserOrders(ctx, getUserIDFromContext(r.Context()), filter.Page, filter.Limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondOrderList(w, orders, filter)
}

// GET /api/v1/orders/{orderID}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderID", "invalid_order_id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, getUserIDFromContext(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{orderID}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderID", "invalid_order_id")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, getUserIDFromContext(r.Context()), orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/admin/orders/{orderID}
func (h *OrdersHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := uuidParam(w, r, "orderID", "invalid_order_id")
	if !ok {
		return
	}

	var req domain.OrderUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Status == nil && req.IsDelivered == nil {
		respondError(w, http.StatusBadRequest, "empty_update", "status or is_delivered is required")
		return
	}

	order, err := h.orders.UpdateOrder(ctx, orderID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/admin/orders?status=&payment_status=&payment_method=&user_id=&page=&limit=
func (h *OrdersHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	query := r.URL.Query()
	filter, ok := parsePaging(w, query)
	if !ok {
		return
	}
	filter.Status = domain.OrderStatus(query.Get("status"))
	filter.PaymentStatus = domain.PaymentStatus(query.Get("payment_status"))
	filter.PaymentMethod = domain.PaymentMethod(query.Get("payment_method"))
	if raw := query.Get("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a UUID")
			return
		}
		filter.UserID = userID
	}

	orders, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondOrderList(w, orders, filter)
}

func parsePaging(w http.ResponseWriter, query url.Values) (repository.OrderFilter, bool) {
	var filter repository.OrderFilter
	for name, dst := range map[string]*int{"page": &filter.Page, "limit": &filter.Limit} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
			return filter, false
		}
		*dst = n
	}
	return filter.Normalize(), true
}

func respondOrderList(w http.ResponseWriter, orders []*domain.Order, filter repository.OrderFilter) {
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{
		Orders: orders,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
}
