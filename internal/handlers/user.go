package handlers

import (
	"net/http"
	"strings"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type UserHandler struct {
	userService services.UserServiceInterface
	authService services.AuthServiceInterface
}

func NewUserHandler(userService services.UserServiceInterface, authService services.AuthServiceInterface) *UserHandler {
	return &UserHandler{userService: userService, authService: authService}
}

type UsersResponse struct {
	Users []models.User `json:"users"`
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	public := user.Public()
	writeJSON(w, http.StatusOK, &public)
}

// List searches users by name prefix (?name=).
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, err := h.userService.List(r.Context(), models.UserListParams{
		NamePrefix: strings.TrimSpace(r.URL.Query().Get("name")),
		Page:       page,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: users})
}

// DeleteMe soft-deletes the caller and revokes the token they used.
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if err := h.userService.SoftDelete(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.authService.RevokeToken(r.Context(), claims); err != nil {
		logging.Warn("Failed to revoke token after account deletion", map[string]interface{}{
			"user_id": claims.UserID.String(),
			"error":   err.Error(),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
