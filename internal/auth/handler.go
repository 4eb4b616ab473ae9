// internal/auth/handler.go
package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"
)

type Handler struct {
	issuer      *Issuer
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// NewHandler serves /login. limiter may be nil to disable rate limiting.
func NewHandler(issuer *Issuer, limiter *rate.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{issuer: issuer, rateLimiter: limiter, logger: logger}
}

type loginResponse struct {
	Token    string `json:"token"`
	Duration int    `json:"duration"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.rateLimiter != nil && !h.rateLimiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var req struct {
		User string `json:"user"`
		Pass string `json:"pass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid login body", http.StatusBadRequest)
		return
	}

	token, err := h.issuer.Login(req.User, req.Pass)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			h.logger.Error("login failed", "error", err)
		} else {
			h.logger.Info("login rejected", "user", req.User)
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{
		Token:    token,
		Duration: int(h.issuer.TTL().Seconds()),
	})
}
