package shared

import "errors"

var (
	// ErrNotFound indicates the entity does not exist for the given tenant.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateNumber indicates a document number collision within tenant and kind.
	ErrDuplicateNumber = errors.New("duplicate document number")
	// ErrValidationFailed indicates a missing or malformed required field.
	ErrValidationFailed = errors.New("validation failed")
	// ErrImmutableState indicates a substantive edit on a non-draft document.
	ErrImmutableState = errors.New("document state is immutable")
	// ErrAlreadyConverted indicates the provisional document already has an official counterpart.
	ErrAlreadyConverted = errors.New("document already converted")
	// ErrInconsistentAllocation indicates a payment line would overpay an invoice.
	ErrInconsistentAllocation = errors.New("inconsistent payment allocation")
)

// UserSafeMessage maps domain errors to messages suitable for end users.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	case errors.Is(err, ErrDuplicateNumber):
		return "A document with this number already exists."
	case errors.Is(err, ErrValidationFailed):
		return "Some fields are missing or invalid."
	case errors.Is(err, ErrImmutableState):
		return "This document can no longer be modified."
	case errors.Is(err, ErrAlreadyConverted):
		return "This document has already been converted."
	case errors.Is(err, ErrInconsistentAllocation):
		return "The payment allocation exceeds the invoice balance."
	default:
		return "An unexpected error occurred."
	}
}
