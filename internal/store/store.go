// Package store is the backing document store for orders and the catalog.
// The rest of the system depends only on the interfaces in this file.
package store

import (
	"context"
	"sort"

	"github.com/kiwari-pos/ordering/internal/order"
)

// Filter selects orders. An empty UserID selects every order.
type Filter struct {
	UserID string
}

// Matches reports whether o falls under the filter.
func (f Filter) Matches(o *order.Order) bool {
	return f.UserID == "" || o.UserID == f.UserID
}

// OrderStore is the minimal document contract the order lifecycle needs.
// Writes are last-write-wins; every accepted write bumps Version.
type OrderStore interface {
	// InsertOrder stores o under a generated id and returns the stored copy.
	InsertOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	// ListOrders returns all orders newest first. Orders of a single user
	// come back in no particular order.
	ListOrders(ctx context.Context, f Filter) ([]order.Order, error)
	UpdateOrder(ctx context.Context, id string, u order.Update) (order.Order, error)
}

// Feed streams order documents as they change, in commit order. The
// channel is closed when ctx is done.
type Feed interface {
	Listen(ctx context.Context) (<-chan order.Order, error)
}

// Catalog is the read side of the menu plus the write used by seeding.
type Catalog interface {
	ListFoods(ctx context.Context) ([]order.Food, error)
	GetFood(ctx context.Context, id string) (order.Food, error)
	CreateFood(ctx context.Context, f order.Food) (order.Food, error)
}

// SortNewestFirst orders by CreatedAt descending, ties broken by id.
func SortNewestFirst(orders []order.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

// Clone deep-copies o so callers never share slices or pointers with the store.
func Clone(o order.Order) order.Order {
	c := o
	if o.Items != nil {
		c.Items = make([]order.OrderLine, len(o.Items))
		copy(c.Items, o.Items)
	}
	if o.GuestInfo != nil {
		g := *o.GuestInfo
		c.GuestInfo = &g
	}
	if o.EstimatedDeliveryTime != nil {
		t := *o.EstimatedDeliveryTime
		c.EstimatedDeliveryTime = &t
	}
	return c
}

// apply mutates o with the non-nil fields of u.
func apply(o *order.Order, u order.Update) {
	if u.Status != nil {
		o.Status = *u.Status
	}
	if u.PaymentConfirmed != nil {
		o.PaymentConfirmed = *u.PaymentConfirmed
	}
	if u.EstimatedDeliveryTime != nil {
		t := *u.EstimatedDeliveryTime
		o.EstimatedDeliveryTime = &t
	}
	o.UpdatedAt = u.UpdatedAt
	o.Version++
}
