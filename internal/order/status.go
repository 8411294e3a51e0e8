package order

import "github.com/kiwari-pos/ordering/internal/enum"

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending   Status = enum.OrderStatusPending
	StatusConfirmed Status = enum.OrderStatusConfirmed
	StatusPreparing Status = enum.OrderStatusPreparing
	StatusReady     Status = enum.OrderStatusReady
	StatusDelivered Status = enum.OrderStatusDelivered
	StatusCancelled Status = enum.OrderStatusCancelled
)

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can move to.
// delivered and cancelled are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady},
	StatusReady:     {StatusDelivered},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing,
		StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

// CheckTransition returns nil when moving from current to next is allowed.
// Re-applying the current status is allowed; callers treat it as a no-op.
func CheckTransition(current, next Status) error {
	if !next.Valid() {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	if current == next {
		return nil
	}
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return &IllegalTransitionError{From: current, To: next}
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s Status) []Status {
	out := make([]Status, len(allowedTransitions[s]))
	copy(out, allowedTransitions[s])
	return out
}
