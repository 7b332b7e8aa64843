package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"budget/internal/core"
	"budget/internal/expenses"
	"budget/internal/identity"
	applog "budget/internal/log"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps domain errors onto HTTP statuses. Each kind gets its own
// message; internal details are logged, not returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ve.Msg, Field: ve.Field})
	case errors.Is(err, core.ErrNotAuthenticated), errors.Is(err, identity.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", `Bearer realm="budget"`)
		msg := "authentication required"
		if errors.Is(err, identity.ErrInvalidCredentials) {
			msg = "invalid email or password"
		}
		writeErrorMessage(w, r, http.StatusUnauthorized, msg)
	case errors.Is(err, core.ErrForbidden):
		writeErrorMessage(w, r, http.StatusForbidden, "you are not allowed to do this")
	case errors.Is(err, core.ErrNotFound):
		writeErrorMessage(w, r, http.StatusNotFound, "expense not found")
	case errors.Is(err, identity.ErrUserNotFound):
		writeErrorMessage(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, core.ErrConflict):
		writeErrorMessage(w, r, http.StatusConflict, "the expense was changed by someone else, reload and retry")
	case errors.Is(err, identity.ErrEmailTaken):
		writeErrorMessage(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, core.ErrPersistence):
		s.failures.LogError(r.Context(), "Storage failure", err, operationOf(r),
			applog.NewFields().WithErrorType(applog.ErrorTypeDatabase))
		writeErrorMessage(w, r, http.StatusServiceUnavailable, "storage unavailable, nothing was changed")
	case errors.Is(err, expenses.ErrClosed):
		writeErrorMessage(w, r, http.StatusServiceUnavailable, "service is shutting down")
	default:
		s.failures.LogError(r.Context(), "Unhandled error", err, operationOf(r),
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		writeErrorMessage(w, r, http.StatusInternalServerError, "internal error")
	}
}

// operationOf names the operation a request performs for error logs.
func operationOf(r *http.Request) string {
	switch r.Method {
	case http.MethodPost:
		return applog.OpCreate
	case http.MethodPatch, http.MethodPut:
		return applog.OpUpdate
	case http.MethodDelete:
		return applog.OpDelete
	default:
		return applog.OpRead
	}
}

// decodeJSON reads a single JSON object from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return core.NewValidationError("", "request body is empty")
		}
		return core.NewValidationError("", fmt.Sprintf("malformed JSON: %v", err))
	}
	if dec.More() {
		return core.NewValidationError("", "request body must contain a single JSON object")
	}
	return nil
}
