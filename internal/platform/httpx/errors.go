package httpx

import (
	"errors"
	"net/http"

	"github.com/sitestock/sitestock/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Rejected
// transitions carry the specific reason so callers can tell "already done by
// someone else" apart from "you lack permission" and "bad input".
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrMissingEvidence):
		Problem(w, http.StatusUnprocessableEntity, "Missing Evidence", err.Error())
	case errors.Is(err, shared.ErrAlreadySent),
		errors.Is(err, shared.ErrAlreadyReceived),
		errors.Is(err, shared.ErrDuplicateInvoice):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
