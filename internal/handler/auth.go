package handler

import (
	"log/slog"
	"net/http"

	"github.com/ahkjxy/family-points-bank-sub000/internal/auth"
)

type AuthHandler struct {
	provider *auth.Provider
	logger   *slog.Logger
}

func NewAuthHandler(p *auth.Provider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{provider: p, logger: logger}
}

type signUpRequest struct {
	FamilyID string `json:"family_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.provider.SignUp(r.Context(), req.FamilyID, req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "sign up", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, "sign in", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.provider.SignOut(r.Context(), ac); err != nil {
		writeError(w, h.logger, "sign out", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestReset handles POST /auth/password/reset. The answer is the same
// whether or not the email belongs to an account.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.provider.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, "request password reset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type confirmResetRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// ConfirmReset handles POST /auth/password/reset/confirm
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req confirmResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.provider.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		writeError(w, h.logger, "reset password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
