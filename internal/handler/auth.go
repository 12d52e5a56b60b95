package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"hydra-waf/internal/auth"
	"hydra-waf/internal/handler/response"
	"hydra-waf/internal/middleware"
	"hydra-waf/internal/store"
)

// AuthHandler owns login, signup and logout.
type AuthHandler struct {
	store    *store.Store
	sessions *auth.Sessions
}

func NewAuthHandler(s *store.Store, sessions *auth.Sessions) *AuthHandler {
	return &AuthHandler{store: s, sessions: sessions}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Login mints a fresh bearer token for valid credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		response.JSONError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), creds.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, creds.Password) {
		response.JSONError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := h.sessions.Mint(*user)
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not create session")
		return
	}
	log.Printf("👤 User %q logged in", user.Username)
	response.JSONSuccess(w, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

// Signup registers a new account. Role defaults to "user"; only an existing
// admin can grant elevated roles, so self-signup ignores the field.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		response.JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	creds.Username = strings.TrimSpace(creds.Username)
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Username == "" || creds.Password == "" || creds.Email == "" {
		response.JSONError(w, http.StatusBadRequest, "Username, password and email are required")
		return
	}

	user, err := h.store.CreateUser(r.Context(), creds.Username, creds.Password, creds.Email, "user")
	if errors.Is(err, store.ErrDuplicate) {
		response.JSONError(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not create user")
		return
	}
	response.JSON(w, http.StatusCreated, user)
}

// Logout revokes the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		h.sessions.Revoke(token)
	}
	response.JSONSuccess(w, map[string]string{"message": "Logged out"})
}

// Users lists all accounts for the admin console.
func (h *AuthHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		response.JSONError(w, http.StatusInternalServerError, "Could not list users")
		return
	}
	response.JSONSuccess(w, map[string]interface{}{"users": users})
}

// Me echoes the identity behind the current token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	user, err := h.store.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		response.JSONError(w, http.StatusNotFound, "User no longer exists")
		return
	}
	response.JSONSuccess(w, user)
}
