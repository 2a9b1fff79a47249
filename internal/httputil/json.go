package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/GiorgiUbiria/rewards_settlement/internal/apperr"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, ErrorResponse{Error: msg})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps engine errors to the status an operator acts on.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyProcessed),
		errors.Is(err, apperr.ErrDuplicateTransaction),
		errors.Is(err, apperr.ErrReferralCycle),
		errors.Is(err, apperr.ErrDailyLimitReached):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrWithdrawalsDisabled):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// WriteFailure writes err with its mapped status. Unclassified errors are
// reported generically.
func WriteFailure(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError &&
		!errors.Is(err, apperr.ErrPartialSettlement) &&
		!errors.Is(err, apperr.ErrInvalidConfiguration) {
		msg = "internal error"
	}
	WriteError(w, code, msg)
}
