package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/kiwari-pos/ordering/internal/order"
)

func sampleOrder() order.Order {
	return order.Order{
		ID:     "3f2b9c1e-0000-4000-8000-000000000001",
		UserID: "user-1",
		Items: []order.OrderLine{
			{FoodID: "a", FoodName: "Nasi Lemak", Quantity: 2},
			{FoodID: "b", FoodName: "Teh Tarik", Quantity: 1},
		},
		GrandTotal: decimal.RequireFromString("40.76"),
		Status:     order.StatusPending,
	}
}

type recorder struct {
	sent []Notification
	err  error
}

func (r *recorder) ScheduleLocal(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestCompose_StatusTemplates(t *testing.T) {
	tests := []struct {
		status order.Status
		title  string
	}{
		{order.StatusPending, "Order received"},
		{order.StatusConfirmed, "Order confirmed"},
		{order.StatusPreparing, "Being prepared"},
		{order.StatusReady, "Ready for pickup/delivery"},
		{order.StatusDelivered, "Delivered"},
		{order.StatusCancelled, "Order cancelled"},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			n, err := Compose(StatusChanged(sampleOrder(), tt.status))
			require.NoError(t, err)
			assert.Equal(t, tt.title, n.Title)
			assert.Contains(t, n.Body, "#3F2B9C1E")
			assert.Equal(t, "user:user-1", n.Audience)
			assert.Equal(t, Payload{
				OrderID:  sampleOrder().ID,
				Type:     TypeOrderStatus,
				Status:   string(tt.status),
				DeepLink: "/orders/" + sampleOrder().ID,
			}, n.Data)
		})
	}
}

func TestCompose_NewOrderGoesToStaff(t *testing.T) {
	n, err := Compose(NewOrder(sampleOrder()))
	require.NoError(t, err)
	assert.Equal(t, enum.AudienceStaff, n.Audience)
	assert.Equal(t, "New order", n.Title)
	assert.Contains(t, n.Body, "3 item(s)")
	assert.Contains(t, n.Body, "RM40.76")
	assert.Equal(t, TypeNewOrder, n.Data.Type)
}

func TestCompose_PaymentConfirmed(t *testing.T) {
	n, err := Compose(PaymentConfirmed(sampleOrder()))
	require.NoError(t, err)
	assert.Equal(t, "Payment confirmed", n.Title)
	assert.Equal(t, TypePaymentConfirmed, n.Data.Type)
	assert.Empty(t, n.Data.DeepLink)
}

func TestCompose_GuestOrderHasNoCustomerAudience(t *testing.T) {
	o := sampleOrder()
	o.UserID = ""
	o.GuestInfo = &order.GuestInfo{FullName: "Aina", Email: "aina@example.com", PhoneNumber: "0123"}

	_, err := Compose(StatusChanged(o, order.StatusConfirmed))
	assert.ErrorIs(t, err, ErrNoAudience)

	n, err := Compose(NewOrder(o))
	require.NoError(t, err)
	assert.Contains(t, n.Body, "Aina")
}

func TestCompose_UnknownStatus(t *testing.T) {
	_, err := Compose(StatusChanged(sampleOrder(), "lost"))
	assert.Error(t, err)
}

func TestDispatcher_DeliversToChannel(t *testing.T) {
	rec := &recorder{}
	NewDispatcher(rec).Notify(context.Background(), StatusChanged(sampleOrder(), order.StatusReady))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "Ready for pickup/delivery", rec.sent[0].Title)
}

func TestDispatcher_SwallowsDeliveryFailure(t *testing.T) {
	rec := &recorder{err: errors.New("channel unavailable")}
	assert.NotPanics(t, func() {
		NewDispatcher(rec).Notify(context.Background(), NewOrder(sampleOrder()))
	})
	assert.Len(t, rec.sent, 1)
}

func TestDispatcher_SkipsEventsWithoutAudience(t *testing.T) {
	rec := &recorder{}
	o := sampleOrder()
	o.UserID = ""
	NewDispatcher(rec).Notify(context.Background(), PaymentConfirmed(o))
	assert.Empty(t, rec.sent)
}

func TestDeliveryError(t *testing.T) {
	cause := errors.New("boom")
	err := &DeliveryError{Type: TypeNewOrder, OrderID: "o1", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "deliver new_order notification for order o1: boom", err.Error())
}

func TestFanout(t *testing.T) {
	ok := &recorder{}
	failing := &recorder{err: errors.New("down")}
	err := Fanout{failing, ok}.ScheduleLocal(context.Background(), Notification{Title: "x"})
	assert.Error(t, err)
	assert.Len(t, ok.sent, 1, "a failing channel does not stop the others")
}

func TestOnUserAction(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		ok      bool
	}{
		{"deep link wins", `{"orderId":"o1","type":"order_status","deepLink":"/orders/o1"}`, "/orders/o1", true},
		{"order status fallback", `{"orderId":"o1","type":"order_status"}`, "/orders", true},
		{"new order fallback", `{"orderId":"o1","type":"new_order"}`, "/admin/orders", true},
		{"payment fallback", `{"orderId":"o1","type":"payment_confirmed"}`, "/orders/o1", true},
		{"not json", `{"orderId":`, "", false},
		{"wrong field type", `{"orderId":42,"type":"new_order"}`, "", false},
		{"missing order id", `{"type":"new_order"}`, "", false},
		{"missing type", `{"orderId":"o1"}`, "", false},
		{"unknown type", `{"orderId":"o1","type":"promo"}`, "", false},
		{"external deep link", `{"orderId":"o1","type":"new_order","deepLink":"https://evil.example"}`, "", false},
		{"protocol relative link", `{"orderId":"o1","type":"new_order","deepLink":"//evil.example"}`, "", false},
		{"null", `null`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, ok := OnUserAction([]byte(tt.payload))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, target.Path)
		})
	}
}

func TestOnUserAction_RoundTripsComposedPayload(t *testing.T) {
	n, err := Compose(NewOrder(sampleOrder()))
	require.NoError(t, err)
	raw, err := json.Marshal(n.Data)
	require.NoError(t, err)

	target, ok := OnUserAction(raw)
	require.True(t, ok)
	assert.Equal(t, "/admin/orders/"+sampleOrder().ID, target.Path)
}

type fakePublisher struct {
	exchange string
	msgs     []amqp.Publishing
	err      error
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestAMQPChannel_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	ch := &AMQPChannel{pub: pub}

	n, _ := Compose(NewOrder(sampleOrder()))
	require.NoError(t, ch.ScheduleLocal(context.Background(), n))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, Exchange, pub.exchange)
	assert.Equal(t, "application/json", pub.msgs[0].ContentType)

	var got Notification
	require.NoError(t, json.Unmarshal(pub.msgs[0].Body, &got))
	assert.Equal(t, n, got)
}

func TestAMQPChannel_ReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{err: amqp.ErrClosed}
	ch := &AMQPChannel{pub: pub}
	err := ch.ScheduleLocal(context.Background(), Notification{})
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.Len(t, pub.msgs, 1, "no reconnect without a url")
}
