/**
 * @description
 * This file contains the HTTP handlers for authentication: login, refresh
 * token rotation, and the OTP password reset flow.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app: Authentication and OTP services.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tsb/banking-service/internal/app"
)

// AuthHandlers holds the authentication services that handlers will use.
type AuthHandlers struct {
	auth   *app.AuthService
	otp    *app.OTPService
	logger *zap.Logger
}

// NewAuthHandlers creates a new instance of AuthHandlers.
func NewAuthHandlers(auth *app.AuthService, otp *app.OTPService, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{auth: auth, otp: otp, logger: logger}
}

// LoginHandler exchanges a username and password for a token pair.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	pair, err := h.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// RefreshHandler rotates a refresh token for a new token pair.
func (h *AuthHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// PasswordResetRequestHandler issues an OTP reset code to the user's phone.
func (h *AuthHandlers) PasswordResetRequestHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Identifier) == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	masked, err := h.otp.RequestPasswordReset(r.Context(), body.Identifier)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"destination": masked})
}

// PasswordResetConfirmHandler verifies an OTP code and sets a new password.
func (h *AuthHandlers) PasswordResetConfirmHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier  string `json:"identifier"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.Identifier) == "" || strings.TrimSpace(body.Code) == "" {
		writeError(w, http.StatusBadRequest, "identifier and code are required")
		return
	}

	if err := h.otp.ConfirmPasswordReset(r.Context(), body.Identifier, strings.TrimSpace(body.Code), body.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
