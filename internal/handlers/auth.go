package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"vesta/internal/auth"
	"vesta/internal/store"
)

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	City     string `json:"city,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries a fresh token and the account
type AuthResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// PasswordRequest is the body of PUT /users/me/password
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

var errBadCredentials = fmt.Errorf("invalid email or password: %w", store.ErrUnauthorized)

// Register creates an account
// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param body body RegisterRequest true "Account"
// @Success 201 {object} AuthResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/register [post]
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	role := store.RoleUser
	if admin := a.cfg.Security.AdminEmail; admin != "" && strings.EqualFold(strings.TrimSpace(req.Email), admin) {
		role = store.RoleAdmin
	}

	u, err := a.store.CreateUser(req.Email, req.Name, hash, role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if req.Phone != "" || req.City != "" {
		if u, err = a.store.UpdateProfile(u.ID, store.ProfileUpdate{Phone: &req.Phone, City: &req.City}); err != nil {
			a.fail(w, r, err)
			return
		}
	}

	a.respondWithToken(w, r, http.StatusCreated, u)
	a.logger.Info("user registered", "user", u.ID, "role", u.Role)
}

// Login exchanges credentials for a token
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Credentials"
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	u, err := a.store.UserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errBadCredentials
		}
		a.fail(w, r, err)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		a.fail(w, r, errBadCredentials)
		return
	}
	if u.Banned {
		a.fail(w, r, errBanned)
		return
	}
	a.respondWithToken(w, r, http.StatusOK, u)
}

func (a *API) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *store.User) {
	token, err := a.tokens.Issue(u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: u})
}

// Me returns the caller's account
func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.User(principal(r).UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe edits the caller's profile
func (a *API) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req store.ProfileUpdate
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.store.UpdateProfile(principal(r).UserID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ChangePassword replaces the caller's password after checking the old one
func (a *API) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	p := principal(r)
	u, err := a.store.User(p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	// Wrong current password is a validation error, not a 401: the
	// session itself is fine.
	if !auth.CheckPassword(u.PasswordHash, req.CurrentPassword) {
		a.fail(w, r, fmt.Errorf("current password is incorrect: %w", store.ErrInvalid))
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.SetPasswordHash(p.UserID, hash); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicProfile returns what anyone may see of a user
func (a *API) PublicProfile(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.User(mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u.Public())
}
