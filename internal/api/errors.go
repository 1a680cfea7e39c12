package api

import (
	"errors"
	"net/http"

	"lpstaking/internal/model"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{model.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{model.ErrInvalidLockup, http.StatusBadRequest, "invalid_lockup"},
	{model.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrNotInitialized, http.StatusConflict, "not_initialized"},
	{model.ErrAlreadyInitialized, http.StatusConflict, "already_initialized"},
	{model.ErrPositionExists, http.StatusConflict, "position_exists"},
	{model.ErrLockupNotExpired, http.StatusConflict, "lockup_not_expired"},
	{model.ErrNothingToClaim, http.StatusConflict, "nothing_to_claim"},
	{model.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{model.ErrArithmeticOverflow, http.StatusUnprocessableEntity, "arithmetic_overflow"},
	{model.ErrArithmeticUnderflow, http.StatusUnprocessableEntity, "arithmetic_underflow"},
}

// classify maps an operation error to an HTTP status and a stable code.
// Invariant violations always map to 500.
func classify(err error) (int, string) {
	if model.IsFatal(err) {
		return http.StatusInternalServerError, "invariant_violation"
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
