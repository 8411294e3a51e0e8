package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/ordering/internal/middleware"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/service"
	"github.com/shopspring/decimal"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (order.Order, error)
	Transition(ctx context.Context, actor service.Actor, id string, next order.Status, opts service.TransitionOptions) (order.Order, error)
	ConfirmPayment(ctx context.Context, actor service.Actor, id string) (order.Order, error)
	GetOrder(ctx context.Context, actor service.Actor, id string) (order.Order, error)
	ListOrders(ctx context.Context, actor service.Actor) ([]order.Order, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	jwtSecret string
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, jwtSecret string) *OrderHandler {
	return &OrderHandler{svc: svc, jwtSecret: jwtSecret}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders. Checkout is open to guests. A guest
// reads, pays and cancels its order with the X-Guest-Token header instead
// of a bearer token; everything else needs a bearer token.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.OptionalAuthenticate(h.jwtSecret)).Post("/", h.Create)

	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthenticate(h.jwtSecret), requireCaller)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/payment/confirm", h.ConfirmPayment)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(h.jwtSecret))
		r.Get("/", h.List)
		r.Patch("/{id}/status", h.UpdateStatus)
	})
}

// --- Request / Response types ---

type createOrderRequest struct {
	GuestInfo       *order.GuestInfo         `json:"guest_info"`
	Items           []createOrderItemRequest `json:"items"`
	DeliveryAddress order.DeliveryAddress    `json:"delivery_address"`
	ContactNumber   string                   `json:"contact_number"`
	PaymentMethod   string                   `json:"payment_method"`
	Notes           string                   `json:"notes"`
	ExpectedTotal   string                   `json:"expected_total"`
}

type createOrderItemRequest struct {
	FoodID              string `json:"food_id"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"special_instructions"`
}

type updateStatusRequest struct {
	Status                string `json:"status"`
	EstimatedDeliveryTime string `json:"estimated_delivery_time"` // RFC3339
}

type orderListResponse struct {
	Orders []order.Order `json:"orders"`
}

// --- Handlers ---

// Create handles checkout. Signed-in customers order under their account;
// anonymous callers must send guest_info.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcReq := service.CreateOrderRequest{
		UserID:          actorFromRequest(r).UserID,
		GuestInfo:       req.GuestInfo,
		Items:           make([]service.CreateOrderItem, len(req.Items)),
		DeliveryAddress: req.DeliveryAddress,
		ContactNumber:   req.ContactNumber,
		PaymentMethod:   order.PaymentMethod(req.PaymentMethod),
		Notes:           req.Notes,
	}
	for i, item := range req.Items {
		svcReq.Items[i] = service.CreateOrderItem{
			FoodID:              item.FoodID,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		}
	}
	if req.ExpectedTotal != "" {
		total, err := decimal.NewFromString(req.ExpectedTotal)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid expected_total", "field": "expected_total"})
			return
		}
		svcReq.ExpectedTotal = &total
	}

	o, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		writeOrderError(w, r, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// List returns the caller's orders (every order for staff), newest first.
// An optional ?status= narrows the result.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var status order.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status = order.Status(s)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
	}

	orders, err := h.svc.ListOrders(r.Context(), actorFromRequest(r))
	if err != nil {
		writeOrderError(w, r, "list orders", err)
		return
	}

	resp := make([]order.Order, 0, len(orders))
	for _, o := range orders {
		if status == "" || o.Status == status {
			resp = append(resp, o)
		}
	}
	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp})
}

// Get returns one order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrder(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// UpdateStatus moves an order through the fulfillment pipeline.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	var opts service.TransitionOptions
	if req.EstimatedDeliveryTime != "" {
		eta, err := time.Parse(time.RFC3339, req.EstimatedDeliveryTime)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid estimated_delivery_time, use RFC3339"})
			return
		}
		opts.EstimatedDeliveryTime = &eta
	}

	o, err := h.svc.Transition(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), order.Status(req.Status), opts)
	if err != nil {
		writeOrderError(w, r, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Cancel cancels an order. Customers may cancel their own pending orders.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Transition(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), order.StatusCancelled, service.TransitionOptions{})
	if err != nil {
		writeOrderError(w, r, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ConfirmPayment records payment on an order, typically a QR transfer the
// customer reports as done.
func (h *OrderHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.ConfirmPayment(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, r, "confirm payment", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
