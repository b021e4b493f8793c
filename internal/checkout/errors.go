package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrCartEmpty           = errors.New("cart is empty, nothing to checkout")
	ErrAddressRequired     = errors.New("shipping address is required")
	ErrZeroTotal           = errors.New("cart total must be positive")
	ErrStaleAuthorization  = errors.New("cart changed after authorization, re-authorize")
	ErrFinalizeInProgress  = errors.New("finalize already in progress")
	ErrAttemptClosed       = errors.New("checkout attempt is closed")
	ErrNotAuthorized       = errors.New("checkout attempt is not authorized yet")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by processor")
	ErrAttemptNotFound     = errors.New("checkout attempt not found")
	ErrStatusConflict      = errors.New("checkout attempt status changed concurrently")
	ErrAuthorizeInProgress = errors.New("authorization with this idempotency key is in progress")
	ErrDuplicateKey        = errors.New("idempotency key already held by a live attempt")
	IllegalTransitionError = errors.New("illegal transition of checkout status")
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindResourceExhaustion
	KindDependencyFailure
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindDependencyFailure:
		return "dependency_failure"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is what the orchestrator returns to callers. Err keeps the original
// cause so errors.Is and errors.As still see the lower-level error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
