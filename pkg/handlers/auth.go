package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"invitely/pkg/api"
	"invitely/pkg/errors"
)

// Account is the remote account the editor signs in to
type Account interface {
	Authenticated() bool
	Login(ctx context.Context, email, password string) (*api.User, error)
	Register(ctx context.Context, email, password, name string) (*api.User, error)
	Me(ctx context.Context) (*api.User, error)
	Logout()
}

// AuthHandlers contains authentication-related handlers
type AuthHandlers struct {
	account Account
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(account Account) *AuthHandlers {
	return &AuthHandlers{account: account}
}

type credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Name            string `json:"name"`
}

func (c *credentials) validate(register bool) *errors.AppError {
	invalid := func(msg string) *errors.AppError {
		return errors.New(errors.ErrTypeValidation, "INVALID_CREDENTIALS", "invalid credentials").
			WithUserMessage(msg)
	}
	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return invalid("A valid email is required")
	}
	if c.Password == "" {
		return invalid("Password required")
	}
	if register {
		if c.Password != c.ConfirmPassword {
			return invalid("Passwords do not match")
		}
		if len(c.Password) < 6 {
			return invalid("Password must be at least 6 characters")
		}
	}
	return nil
}

// LoginHandler signs in to the remote service
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.account.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// RegisterHandler creates a remote account and signs in
func (h *AuthHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.account.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// MeHandler returns the signed-in user
func (h *AuthHandlers) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.account.Me(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// LogoutHandler forgets the stored token
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.account.Logout()
	w.WriteHeader(http.StatusNoContent)
}
