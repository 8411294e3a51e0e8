package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/notify"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/kiwari-pos/ordering/internal/pricing"
	"github.com/kiwari-pos/ordering/internal/store"
	"github.com/shopspring/decimal"
)

// Notifier receives lifecycle events. Satisfied by *notify.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, e notify.Event)
}

// Actor is the authenticated caller. Guests have an empty UserID and role
// and reach their order through the token issued at checkout.
type Actor struct {
	UserID     string
	Role       string
	GuestToken string
}

// IsStaff reports whether the actor may manage every order.
func (a Actor) IsStaff() bool { return a.Role == enum.UserRoleStaff }

// CreateOrderRequest is the checkout input.
type CreateOrderRequest struct {
	UserID          string
	GuestInfo       *order.GuestInfo
	Items           []CreateOrderItem
	DeliveryAddress order.DeliveryAddress
	ContactNumber   string
	PaymentMethod   order.PaymentMethod
	Notes           string
	// ExpectedTotal is the total the client previewed. When set, checkout
	// fails if catalog prices moved since.
	ExpectedTotal *decimal.Decimal
}

// CreateOrderItem is one cart line at checkout.
type CreateOrderItem struct {
	FoodID              string
	Quantity            int
	SpecialInstructions string
}

// TransitionOptions carries optional fields set alongside a status change.
type TransitionOptions struct {
	// EstimatedDeliveryTime is recorded when moving to confirmed.
	EstimatedDeliveryTime *time.Time
}

// OrderService is the only writer of order status and payment state.
type OrderService struct {
	orders   store.OrderStore
	catalog  store.Catalog
	notifier Notifier
	policy   pricing.Policy
	now      func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(orders store.OrderStore, catalog store.Catalog, notifier Notifier, policy pricing.Policy) *OrderService {
	return &OrderService{
		orders:   orders,
		catalog:  catalog,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// CreateOrder validates the request, snapshots catalog prices, prices the
// order and stores it as pending. Validation failures never reach the store.
// Items naming the same food are merged into one line. A guest order comes
// back with GuestToken set; it is shown once and needed for later access.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (order.Order, error) {
	if err := validateCreate(req); err != nil {
		return order.Order{}, err
	}

	// --- Snapshot lines from the catalog ---
	lines := make([]order.OrderLine, 0, len(req.Items))
	byFood := make(map[string]int, len(req.Items))
	for i, item := range req.Items {
		if j, ok := byFood[item.FoodID]; ok {
			lines[j].Quantity += item.Quantity
			if item.SpecialInstructions != "" {
				lines[j].SpecialInstructions = item.SpecialInstructions
			}
			continue
		}
		food, err := s.catalog.GetFood(ctx, item.FoodID)
		if err != nil {
			if errors.Is(err, order.ErrNotFound) {
				return order.Order{}, &order.ValidationError{Field: fmt.Sprintf("items[%d].food_id", i), Reason: "unknown food"}
			}
			return order.Order{}, fmt.Errorf("item[%d]: get food: %w", i, err)
		}
		if !food.Available {
			return order.Order{}, &order.ValidationError{Field: fmt.Sprintf("items[%d].food_id", i), Reason: food.Name + " is not available"}
		}
		byFood[item.FoodID] = len(lines)
		lines = append(lines, order.OrderLine{
			FoodID:              food.ID,
			FoodName:            food.Name,
			Quantity:            item.Quantity,
			UnitPrice:           food.Price,
			SpecialInstructions: item.SpecialInstructions,
		})
	}

	// --- Price ---
	summary := s.policy.Compute(lines)
	if req.ExpectedTotal != nil && !summary.Total.Equal(*req.ExpectedTotal) {
		return order.Order{}, &order.ValidationError{
			Field:  "expected_total",
			Reason: fmt.Sprintf("prices changed, total is now %s", summary.Total.StringFixed(2)),
		}
	}

	now := s.now()
	o := order.Order{
		UserID:           req.UserID,
		GuestInfo:        req.GuestInfo,
		Items:            lines,
		DeliveryAddress:  req.DeliveryAddress,
		ContactNumber:    req.ContactNumber,
		PaymentMethod:    req.PaymentMethod,
		Status:           order.StatusPending,
		PaymentConfirmed: req.PaymentMethod == order.PaymentCashOnDelivery,
		CreatedAt:        now,
		UpdatedAt:        now,
		Notes:            req.Notes,
	}
	summary.Apply(&o)

	var guestToken string
	if req.UserID == "" {
		guestToken = uuid.NewString()
		o.GuestTokenHash = hashGuestToken(guestToken)
	}

	// --- Insert ---
	created, err := s.orders.InsertOrder(ctx, o)
	if err != nil {
		return order.Order{}, fmt.Errorf("insert order: %w", err)
	}

	s.notify(ctx, notify.NewOrder(created))
	created.GuestToken = guestToken
	return created, nil
}

// Transition moves the order to next. Resubmitting the current status is a
// no-op success. Illegal moves mutate and notify nothing.
func (s *OrderService) Transition(ctx context.Context, actor Actor, id string, next order.Status, opts TransitionOptions) (order.Order, error) {
	current, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := authorizeTransition(actor, &current, next); err != nil {
		return order.Order{}, err
	}
	if err := order.CheckTransition(current.Status, next); err != nil {
		return order.Order{}, err
	}
	if current.Status == next {
		return current, nil
	}

	u := order.Update{Status: &next, UpdatedAt: s.nextUpdatedAt(&current)}
	if next == order.StatusConfirmed && opts.EstimatedDeliveryTime != nil {
		u.EstimatedDeliveryTime = opts.EstimatedDeliveryTime
	}
	updated, err := s.orders.UpdateOrder(ctx, id, u)
	if err != nil {
		return order.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.notify(ctx, notify.StatusChanged(updated, next))
	return updated, nil
}

// ConfirmPayment marks the order paid regardless of status. Confirming an
// already confirmed payment is a no-op.
func (s *OrderService) ConfirmPayment(ctx context.Context, actor Actor, id string) (order.Order, error) {
	current, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := authorizeOwner(actor, &current); err != nil {
		return order.Order{}, err
	}
	if current.PaymentConfirmed {
		return current, nil
	}

	paid := true
	updated, err := s.orders.UpdateOrder(ctx, id, order.Update{PaymentConfirmed: &paid, UpdatedAt: s.nextUpdatedAt(&current)})
	if err != nil {
		return order.Order{}, fmt.Errorf("confirm payment: %w", err)
	}

	s.notify(ctx, notify.PaymentConfirmed(updated))
	return updated, nil
}

// GetOrder returns one order the actor may see.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, id string) (order.Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	if err := authorizeOwner(actor, &o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// ListOrders returns every order for staff and the actor's own orders
// otherwise, newest first.
func (s *OrderService) ListOrders(ctx context.Context, actor Actor) ([]order.Order, error) {
	f := store.Filter{}
	if !actor.IsStaff() {
		if actor.UserID == "" {
			return nil, order.ErrForbidden
		}
		f.UserID = actor.UserID
	}
	orders, err := s.orders.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if f.UserID != "" {
		store.SortNewestFirst(orders)
	}
	return orders, nil
}

// notify runs on a context that survives the caller's cancellation; a send
// that has started is allowed to finish.
func (s *OrderService) notify(ctx context.Context, e notify.Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), e)
}

// nextUpdatedAt keeps UpdatedAt strictly increasing even if the clock
// stalls or steps back. Postgres keeps microseconds.
func (s *OrderService) nextUpdatedAt(o *order.Order) time.Time {
	now := s.now()
	if floor := o.UpdatedAt.Add(time.Microsecond); now.Before(floor) {
		return floor
	}
	return now
}

// --- Helpers ---

func validateCreate(req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return &order.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, item := range req.Items {
		if item.FoodID == "" {
			return &order.ValidationError{Field: fmt.Sprintf("items[%d].food_id", i), Reason: "is required"}
		}
		if item.Quantity < 1 {
			return &order.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be at least 1"}
		}
	}
	if err := order.ValidateCustomer(req.UserID, req.GuestInfo); err != nil {
		return err
	}
	if err := order.ValidateAddress(req.DeliveryAddress); err != nil {
		return err
	}
	if err := order.ValidateContact(req.ContactNumber); err != nil {
		return err
	}
	if !req.PaymentMethod.Valid() {
		return &order.ValidationError{Field: "payment_method", Reason: "must be cash_on_delivery or qr_code"}
	}
	return nil
}

// authorizeOwner lets staff through, customers only to their own orders and
// guests only with the token of the order they placed.
func authorizeOwner(actor Actor, o *order.Order) error {
	if actor.IsStaff() {
		return nil
	}
	if actor.UserID != "" && actor.UserID == o.UserID {
		return nil
	}
	if o.UserID == "" && o.GuestTokenHash != "" && actor.GuestToken != "" &&
		subtle.ConstantTimeCompare([]byte(hashGuestToken(actor.GuestToken)), []byte(o.GuestTokenHash)) == 1 {
		return nil
	}
	return order.ErrForbidden
}

func hashGuestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// authorizeTransition lets staff run the whole pipeline. Customers may only
// cancel their own orders while still pending.
func authorizeTransition(actor Actor, o *order.Order, next order.Status) error {
	if actor.IsStaff() {
		return nil
	}
	if err := authorizeOwner(actor, o); err != nil {
		return err
	}
	if next != order.StatusCancelled || (o.Status != order.StatusPending && o.Status != order.StatusCancelled) {
		return order.ErrForbidden
	}
	return nil
}
