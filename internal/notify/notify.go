// Package notify turns order lifecycle events into user-facing
// notifications and resolves tapped notifications back to app routes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/order"
	"github.com/rs/zerolog/log"
)

// Type identifies the kind of event carried in a notification payload.
type Type string

const (
	TypeOrderStatus      Type = enum.NotificationOrderStatus
	TypeNewOrder         Type = enum.NotificationNewOrder
	TypePaymentConfirmed Type = enum.NotificationPaymentConfirmed
)

// ErrNoAudience is returned by Compose when nobody can receive the event,
// e.g. a status change on a guest order.
var ErrNoAudience = errors.New("notification has no audience")

var statusTitles = map[order.Status]string{
	order.StatusPending:   "Order received",
	order.StatusConfirmed: "Order confirmed",
	order.StatusPreparing: "Being prepared",
	order.StatusReady:     "Ready for pickup/delivery",
	order.StatusDelivered: "Delivered",
	order.StatusCancelled: "Order cancelled",
}

var statusBodies = map[order.Status]string{
	order.StatusPending:   "We have received order %s and will confirm it shortly.",
	order.StatusConfirmed: "Order %s has been confirmed by the restaurant.",
	order.StatusPreparing: "The kitchen is preparing order %s.",
	order.StatusReady:     "Order %s is ready.",
	order.StatusDelivered: "Order %s has been delivered. Enjoy your meal!",
	order.StatusCancelled: "Order %s has been cancelled.",
}

// Event is a lifecycle occurrence worth telling someone about.
type Event struct {
	Type   Type
	Order  order.Order
	Status order.Status // set for TypeOrderStatus
}

// StatusChanged is emitted after an accepted transition to status.
func StatusChanged(o order.Order, status order.Status) Event {
	return Event{Type: TypeOrderStatus, Order: o, Status: status}
}

// PaymentConfirmed is emitted after payment on o is confirmed.
func PaymentConfirmed(o order.Order) Event {
	return Event{Type: TypePaymentConfirmed, Order: o}
}

// NewOrder is emitted after checkout stores o.
func NewOrder(o order.Order) Event {
	return Event{Type: TypeNewOrder, Order: o}
}

// Payload is the structured data attached to every notification and handed
// back by the platform when the notification is tapped.
type Payload struct {
	OrderID  string `json:"orderId"`
	Type     Type   `json:"type"`
	Status   string `json:"status,omitempty"`
	DeepLink string `json:"deepLink,omitempty"`
}

// Notification is a rendered message addressed to an audience.
type Notification struct {
	Audience string  `json:"audience"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Data     Payload `json:"data"`
}

// Channel delivers a notification immediately.
type Channel interface {
	ScheduleLocal(ctx context.Context, n Notification) error
}

// DeliveryError wraps a channel failure. It is logged and never returned to
// the operation that produced the event.
type DeliveryError struct {
	Type    Type
	OrderID string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s notification for order %s: %v", e.Type, e.OrderID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// UserAudience is the audience of the customer owning an order.
func UserAudience(userID string) string { return "user:" + userID }

// Dispatcher renders events and hands them to a Channel.
type Dispatcher struct {
	channel Channel
}

// NewDispatcher creates a Dispatcher. A nil channel falls back to LogChannel.
func NewDispatcher(channel Channel) *Dispatcher {
	if channel == nil {
		channel = LogChannel{}
	}
	return &Dispatcher{channel: channel}
}

// Notify delivers e on a best-effort basis. Failures are logged as a
// DeliveryError and swallowed.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	n, err := Compose(e)
	if err != nil {
		log.Debug().Err(err).Str("order_id", e.Order.ID).Str("type", string(e.Type)).Msg("notify: skipped")
		return
	}
	if err := d.channel.ScheduleLocal(ctx, n); err != nil {
		derr := &DeliveryError{Type: e.Type, OrderID: e.Order.ID, Err: err}
		log.Error().Err(derr).Str("audience", n.Audience).Msg("notify: delivery failed")
		return
	}
	log.Debug().Str("order_id", e.Order.ID).Str("type", string(e.Type)).Str("audience", n.Audience).Msg("notify: delivered")
}

// Compose renders e into a notification using the fixed templates.
func Compose(e Event) (Notification, error) {
	o := e.Order
	ref := ShortRef(o.ID)

	switch e.Type {
	case TypeOrderStatus:
		title, ok := statusTitles[e.Status]
		if !ok {
			return Notification{}, fmt.Errorf("compose: unknown status %q", e.Status)
		}
		if o.UserID == "" {
			return Notification{}, ErrNoAudience
		}
		return Notification{
			Audience: UserAudience(o.UserID),
			Title:    title,
			Body:     fmt.Sprintf(statusBodies[e.Status], ref),
			Data: Payload{
				OrderID:  o.ID,
				Type:     TypeOrderStatus,
				Status:   string(e.Status),
				DeepLink: "/orders/" + o.ID,
			},
		}, nil

	case TypePaymentConfirmed:
		if o.UserID == "" {
			return Notification{}, ErrNoAudience
		}
		return Notification{
			Audience: UserAudience(o.UserID),
			Title:    "Payment confirmed",
			Body:     fmt.Sprintf("Payment for order %s has been confirmed.", ref),
			Data:     Payload{OrderID: o.ID, Type: TypePaymentConfirmed},
		}, nil

	case TypeNewOrder:
		return Notification{
			Audience: enum.AudienceStaff,
			Title:    "New order",
			Body: fmt.Sprintf("Order %s from %s: %d item(s), total RM%s",
				ref, o.CustomerName(), itemCount(o), o.GrandTotal.StringFixed(2)),
			Data: Payload{
				OrderID:  o.ID,
				Type:     TypeNewOrder,
				Status:   string(o.Status),
				DeepLink: "/admin/orders/" + o.ID,
			},
		}, nil
	}
	return Notification{}, fmt.Errorf("compose: unknown event type %q", e.Type)
}

// ShortRef is the human-facing order reference used in messages.
func ShortRef(id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return "#" + strings.ToUpper(id)
}

func itemCount(o order.Order) int {
	n := 0
	for _, l := range o.Items {
		n += l.Quantity
	}
	return n
}
