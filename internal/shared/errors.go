package shared

import "errors"

// Sentinel errors shared across the supply-chain domain packages. Services wrap
// these with module context so HTTP handlers can map them to responses while
// callers can still distinguish "retry won't help" failures (validation,
// idempotency violations) from transient ones.
var (
	// ErrValidation indicates malformed input such as a non-positive quantity
	// or a blank required field.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation attempted outside its required
	// precondition state.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrAlreadySent indicates a material request was already dispatched.
	ErrAlreadySent = errors.New("material already sent")
	// ErrAlreadyReceived indicates a goods receipt was already confirmed.
	ErrAlreadyReceived = errors.New("grn already confirmed")
	// ErrDuplicateInvoice indicates an invoice already exists for the purchase.
	ErrDuplicateInvoice = errors.New("invoice already issued")
	// ErrMissingEvidence indicates a GRN attempt without the mandatory photo
	// or valid GPS coordinates.
	ErrMissingEvidence = errors.New("missing receipt evidence")
	// ErrForbidden indicates the actor lacks the project role for the action.
	ErrForbidden = errors.New("forbidden")
)
