package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no order (or food) matches an id.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks a network/backend failure of the document store.
	// Store implementations wrap it with %w so callers can errors.Is it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrForbidden is returned when the caller may not touch the order.
	ErrForbidden = errors.New("order belongs to another customer")
)

// ValidationError reports incomplete or malformed checkout input.
// It is raised before any store write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IllegalTransitionError is a rejected status change.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("cannot transition from %s: order is %s", e.From, e.From)
	}
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIllegalTransition reports whether err carries an *IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var te *IllegalTransitionError
	return errors.As(err, &te)
}
