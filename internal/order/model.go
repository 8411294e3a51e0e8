package order

import (
	"time"

	"github.com/kiwari-pos/ordering/internal/enum"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = enum.PaymentMethodCashOnDelivery
	PaymentQRCode         PaymentMethod = enum.PaymentMethodQRCode
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentQRCode
}

// Food is a catalog entry.
type Food struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// OrderLine is the per-item snapshot taken when the order is created.
// Name and price are copied, never joined back to the catalog.
type OrderLine struct {
	FoodID              string          `json:"food_id"`
	FoodName            string          `json:"food_name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// LineTotal is unit price times quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// DeliveryAddress is where the order goes. Everything but
// SpecialInstructions is required.
type DeliveryAddress struct {
	Street              string `json:"street" validate:"notblank"`
	City                string `json:"city" validate:"notblank"`
	State               string `json:"state" validate:"notblank"`
	PostalCode          string `json:"postal_code" validate:"notblank"`
	Country             string `json:"country" validate:"notblank"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// GuestInfo identifies a customer who checked out without an account.
type GuestInfo struct {
	FullName    string `json:"full_name" validate:"notblank"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number" validate:"notblank"`
}

// Order is the central aggregate. Items and the price breakdown are fixed
// at creation; only Status, PaymentConfirmed, EstimatedDeliveryTime,
// UpdatedAt and Version change afterwards.
type Order struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id,omitempty"`
	GuestInfo             *GuestInfo      `json:"guest_info,omitempty"`
	Items                 []OrderLine     `json:"items"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	Tax                   decimal.Decimal `json:"tax"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	DeliveryAddress       DeliveryAddress `json:"delivery_address"`
	ContactNumber         string          `json:"contact_number"`
	PaymentMethod         PaymentMethod   `json:"payment_method"`
	Status                Status          `json:"status"`
	PaymentConfirmed      bool            `json:"payment_confirmed"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	EstimatedDeliveryTime *time.Time      `json:"estimated_delivery_time,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	Version               int64           `json:"version"`

	// GuestTokenHash is the SHA-256 of the guest's access token. Only guest
	// orders carry one.
	GuestTokenHash string `json:"guest_token_hash,omitempty"`
	// GuestToken is set on the checkout response only and never stored.
	GuestToken string `json:"guest_token,omitempty"`
}

// IsGuest reports whether the order is attributed to embedded guest info.
func (o *Order) IsGuest() bool {
	return o.UserID == "" && o.GuestInfo != nil
}

// CustomerName returns a display name for notifications.
func (o *Order) CustomerName() string {
	if o.GuestInfo != nil {
		return o.GuestInfo.FullName
	}
	return o.UserID
}

// Update is a field-level mutation applied by the store. Nil fields are
// left untouched.
type Update struct {
	Status                *Status
	PaymentConfirmed      *bool
	EstimatedDeliveryTime *time.Time
	UpdatedAt             time.Time
}
