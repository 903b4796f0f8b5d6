package handlers

import (
	"net/http"
	"time"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type AuthHandler struct {
	userService services.UserServiceInterface
	authService services.AuthServiceInterface
}

func NewAuthHandler(userService services.UserServiceInterface, authService services.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authService: authService,
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := services.ValidateRegistration(req.Name, req.Email, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.Create(r.Context(), models.CreateUserParams{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	token, expiresAt, err := h.authService.IssueToken(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	logging.Info("User registered", map[string]interface{}{"user_id": user.ID.String()})
	writeJSON(w, http.StatusCreated, TokenResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Login and password are required")
		return
	}

	token, expiresAt, err := h.authService.Authenticate(r.Context(), h.userService, req.Login, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout revokes the token used for this request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.authService.RevokeToken(r.Context(), claims); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}
