// Package apperr defines the error kinds surfaced by the monetization core
// and their HTTP mapping. Handlers wrap these sentinels with context via
// fmt.Errorf and the route layer maps them to status codes with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation means the request body violates the flow's schema.
	ErrValidation = errors.New("validation error")
	// ErrNotFound means a referenced user, content, series, or withdrawal is missing.
	ErrNotFound = errors.New("not found")
	// ErrOwnerMissing means the purchased content has no owner on record.
	ErrOwnerMissing = errors.New("content owner missing")
	// ErrOwnerPayoutMissing means the owner has no payout destination.
	ErrOwnerPayoutMissing = errors.New("owner payout destination missing")
	// ErrInsufficientBalance covers withdrawal requests above the pending
	// balance and gateway-reported payer balance failures.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidStateTransition means an operation was attempted from the
	// wrong lifecycle state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrGatewayTimeout means an external gateway did not answer in time.
	ErrGatewayTimeout = errors.New("gateway timeout")
	// ErrGatewayFailure means an external gateway was unreachable or failed.
	ErrGatewayFailure = errors.New("gateway failure")
	// ErrSideEffectFailure means a database or email failure after a terminal
	// gateway outcome; the reconciler retries until it converges.
	ErrSideEffectFailure = errors.New("side effect failure")
)

// HTTPStatus maps an error to the response status the route layer returns.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrOwnerMissing),
		errors.Is(err, ErrOwnerPayoutMissing),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInvalidStateTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrGatewayTimeout), errors.Is(err, ErrGatewayFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
