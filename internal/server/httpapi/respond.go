// Package httpapi serves the marketplace auth endpoints over JSON/HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/and161185/gigmarket/internal/errs"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type errorBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Message: msg})
}

// statusOf maps service sentinels to an HTTP status and a client-safe message.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "too many attempts, try again later"
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, "an account with this email already exists"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusOf(err)
	if status >= 500 {
		h.log.Error(op, zap.Error(err), zap.String("request_id", RequestID(r.Context())))
	}
	writeError(w, status, msg)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
