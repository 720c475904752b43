/*
errors.go - Centralized error types for the stamp card engine

ERROR CATEGORIES:
  1. Lookup errors - Customer does not resolve (NotFound)
  2. Rule errors - Redemption without a full card (InvalidState)
  3. Access errors - Missing identity or staff role
  4. Store errors - Persistence failures, always surfaced as Internal

USAGE:
    if errors.Is(err, loyalty.ErrInvalidState) {
        // tell staff the card is not full yet
    }

SEE ALSO:
  - service.go: Wraps store failures with ErrInternal
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCustomerNotFound is returned when a customer ID does not resolve.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrInvalidState is returned when a rule precondition fails,
	// e.g. redeeming a card with fewer than nine stamps.
	ErrInvalidState = errors.New("invalid ledger state")

	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnauthenticated is returned when no caller identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when the caller lacks the staff role.
	ErrForbidden = errors.New("staff role required")

	// ErrInternal wraps every persistence failure.
	ErrInternal = errors.New("internal error")

	// ErrConcurrentModification is returned when the ledger changed between
	// read and write inside a transaction.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStampsError reports a redemption attempt on an incomplete card.
type InsufficientStampsError struct {
	CustomerID CustomerID
	Have       int
	Need       int
}

func (e *InsufficientStampsError) Error() string {
	return fmt.Sprintf("card for %s has %d of %d stamps", e.CustomerID, e.Have, e.Need)
}

func (e *InsufficientStampsError) Unwrap() error { return ErrInvalidState }

// NoRewardAvailableError reports a claim with no reward left to hand over.
type NoRewardAvailableError struct {
	CustomerID CustomerID
}

func (e *NoRewardAvailableError) Error() string {
	return fmt.Sprintf("no reward available for %s", e.CustomerID)
}

func (e *NoRewardAvailableError) Unwrap() error { return ErrInvalidState }

// DuplicateCustomerError reports a signup with an email already registered.
type DuplicateCustomerError struct {
	Email    string
	Existing CustomerID
}

func (e *DuplicateCustomerError) Error() string {
	return fmt.Sprintf("email %s already registered", e.Email)
}

func (e *DuplicateCustomerError) Unwrap() error { return ErrInvalidArgument }

// internalError marks a store failure as Internal while keeping the cause.
type internalError struct {
	op  string
	err error
}

func (e *internalError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }

func (e *internalError) Is(target error) bool { return target == ErrInternal }

func (e *internalError) Unwrap() error { return e.err }

// Internal wraps err as an Internal failure of op. Domain errors pass through.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrInternal) {
		return err
	}
	return &internalError{op: op, err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing customer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

// IsClientError returns true if the error is due to the caller's input or
// the current ledger state rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrForbidden)
}
