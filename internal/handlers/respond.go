package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/chessticulate/internal/logging"
	"github.com/HammerMeetNail/chessticulate/internal/models"
	"github.com/HammerMeetNail/chessticulate/internal/services"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrDuplicatePending),
		errors.Is(err, services.ErrUserBusy),
		errors.Is(err, services.ErrAlreadyResolved),
		errors.Is(err, services.ErrNameTaken):
		return http.StatusConflict
	}

	switch services.KindOf(err) {
	case services.KindValidation, services.KindRejection:
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err as {"error", "code"}. Internal details are
// logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		fields := map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		}
		logger := logging.Default.WithContext(r.Context())
		if status == http.StatusServiceUnavailable {
			logger.Warn("Request failed", fields)
		} else {
			logger.Error("Request failed", fields)
		}
	}

	message := err.Error()
	var de *services.DomainError
	switch services.KindOf(err) {
	case services.KindUnknown:
		message = "Internal server error"
	case services.KindTransient, services.KindFatal:
		if errors.As(err, &de) {
			message = de.Message
		}
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: services.CodeOf(err)})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	return id, err == nil
}

// parsePage reads skip, limit and reverse from the query string.
func parsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	var page models.Page
	var err error
	if v := q.Get("skip"); v != "" {
		if page.Skip, err = strconv.Atoi(v); err != nil || page.Skip < 0 {
			return page, errors.New("skip must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil || page.Limit < 1 {
			return page, errors.New("limit must be a positive integer")
		}
	}
	if v := q.Get("reverse"); v != "" {
		if page.Reverse, err = strconv.ParseBool(v); err != nil {
			return page, errors.New("reverse must be true or false")
		}
	}
	return page.Normalize(), nil
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, errors.New(name + " must be a valid id")
	}
	return &id, nil
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := CurrentUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}
