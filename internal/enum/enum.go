package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// ── Group B: Payment ──

const (
	PaymentMethodCashOnDelivery = "cash_on_delivery"
	PaymentMethodQRCode         = "qr_code"
)

// ── Group C: Borderline (roles carried in JWT claims) ──

const (
	UserRoleCustomer = "CUSTOMER"
	UserRoleStaff    = "STAFF"
)

// ── Group D: Notification payload types ──

const (
	NotificationOrderStatus      = "order_status"
	NotificationNewOrder         = "new_order"
	NotificationPaymentConfirmed = "payment_confirmed"
)

// AudienceStaff is the notification room every staff console joins.
const AudienceStaff = "staff"
