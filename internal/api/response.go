/**
 * @description
 * Shared response helpers for the HTTP layer. Business rule violations are
 * reported as 422 with a machine-readable code; missing resources as 404;
 * everything unexpected as a generic 500 so internals never leak.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/domain, internal/store: Error taxonomy.
 */

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/app"
	"github.com/tsb/banking-service/internal/domain"
	"github.com/tsb/banking-service/internal/store"
)

type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// writeServiceError maps service-layer errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if bizErr, ok := domain.AsBusinessError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: bizErr.Code, Message: bizErr.Message})
		return
	}
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, store.ErrLockNotAvailable):
		writeError(w, http.StatusServiceUnavailable, "Account is busy, please retry")
	default:
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
