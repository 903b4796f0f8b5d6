package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type InvitationHandler struct {
	invitations services.InvitationServiceInterface
}

func NewInvitationHandler(invitations services.InvitationServiceInterface) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

type CreateInvitationRequest struct {
	InviteeID uuid.UUID `json:"invitee_id"`
}

type InvitationsResponse struct {
	Invitations []models.Invitation `json:"invitations"`
}

type GameResponse struct {
	Game *models.Game `json:"game"`
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateInvitationRequest
	if err := decodeJSON(r, &req); err != nil || req.InviteeID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invitee_id is required")
		return
	}

	inv, err := h.invitations.Create(r.Context(), userID, req.InviteeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *InvitationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}
	inv, err := h.invitations.Get(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// List filters by from, to and status. At least one side must be the caller;
// with neither given it lists the caller's incoming invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := queryUUID(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryUUID(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case from == nil && to == nil:
		to = &userID
	case (from == nil || *from != userID) && (to == nil || *to != userID):
		writeError(w, http.StatusForbidden, "You can only list your own invitations")
		return
	}

	params := models.InvitationListParams{InviterID: from, InviteeID: to, Page: page}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.InvitationStatus(v)
		params.Status = &status
	}

	invitations, err := h.invitations.List(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InvitationsResponse{Invitations: invitations})
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}
	game, err := h.invitations.Accept(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GameResponse{Game: game})
}

func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.invitations.Decline)
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.invitations.Cancel)
}

func (h *InvitationHandler) resolve(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Invitation, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid invitation ID")
		return
	}
	inv, err := fn(r.Context(), id, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
