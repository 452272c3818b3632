package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/authsvc"
)

// AuthHandler implements POST /auth/otp and POST /auth/token (§4.G).
type AuthHandler struct {
	auth   *authsvc.Service
	logger *slog.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *authsvc.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type otpRequest struct {
	Email string `json:"email"`
}

// HandleRequestOTP issues and emails a one-time code. It always responds 200, regardless of
// whether the email is known, per §4.G's anti-enumeration rule; a delivery failure is logged
// but not surfaced.
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.JSON(err))
		return
	}
	if err := h.auth.RequestOTP(r.Context(), req.Email); err != nil && h.logger != nil {
		h.logger.Warn("issuing otp failed", slog.String("email", req.Email), slog.String("error", err.Error()))
	}
	writeJSON(w, h.logger, http.StatusOK, nil)
}

type tokenRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleExchangeToken verifies an OTP and mints a bearer token, setting it both in the
// response body and as the CRR_TOKEN cookie (§4.G).
func (h *AuthHandler) HandleExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.JSON(err))
		return
	}

	token, err := h.auth.ExchangeOTP(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authsvc.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	writeJSON(w, h.logger, http.StatusOK, tokenResponse{Token: token})
}
