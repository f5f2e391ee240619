package errors

import (
	"fmt"

	"github.com/modomart/checkoutbff/internal/domain"
)

// ErrNotFound indicates a resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized indicates a missing or invalid credential
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

// ErrInvalidStateTransition indicates an illegal flow phase change
type ErrInvalidStateTransition struct {
	From domain.FlowPhase
	To   domain.FlowPhase
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// ErrEmptyCart indicates a checkout was started with no selected cart items
type ErrEmptyCart struct{}

func (e *ErrEmptyCart) Error() string {
	return "no cart items selected for checkout"
}

// ErrNoShippingAddress indicates no resolved shipping profile is available
type ErrNoShippingAddress struct{}

func (e *ErrNoShippingAddress) Error() string {
	return "no shipping address selected"
}

// ErrSubmitInFlight indicates a checkout submission is already running
type ErrSubmitInFlight struct{}

func (e *ErrSubmitInFlight) Error() string {
	return "checkout submission already in progress"
}

// ErrIdempotencyKeyReuse indicates an Idempotency-Key was presented again
// with a different selection than it was first submitted with
type ErrIdempotencyKeyReuse struct {
	Key string
}

func (e *ErrIdempotencyKeyReuse) Error() string {
	return fmt.Sprintf("idempotency key %s was already used for a different selection", e.Key)
}

// ErrUpstream indicates a storefront platform call failed
type ErrUpstream struct {
	Operation string
	Status    int
	Message   string
}

func (e *ErrUpstream) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("storefront %s failed: status %d: %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("storefront %s failed: %s", e.Operation, e.Message)
}
