package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrDuplicateNumber):
		Problem(w, http.StatusConflict, "Duplicate Number", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrAlreadyConverted):
		Problem(w, http.StatusConflict, "Already Converted", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrValidationFailed):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrImmutableState):
		Problem(w, http.StatusConflict, "Immutable State", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrInconsistentAllocation):
		Problem(w, http.StatusUnprocessableEntity, "Inconsistent Allocation", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
