package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/commutetimely/leavetime/internal/api/models"
	"github.com/commutetimely/leavetime/internal/api/response"
	"github.com/commutetimely/leavetime/internal/preference"
)

// PreferenceService is the preference operations the API needs.
type PreferenceService interface {
	PreferenceReader
	Get(ctx context.Context, userID string) (*models.Preferences, error)
	Update(ctx context.Context, userID string, input *models.PreferencesInput) (*models.Preferences, error)
}

// PreferencesHandler handles preference endpoints.
type PreferencesHandler struct {
	prefs  PreferenceService
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(prefs PreferenceService, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs, logger: logger}
}

// GetPreferences handles GET /v1/preferences.
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.prefs.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load preferences")
		response.InternalError(w, r, "failed to load preferences")
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}

// UpdatePreferences handles PUT /v1/preferences.
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var input models.PreferencesInput
	if !decodeJSON(w, r, &input) {
		return
	}

	p, err := h.prefs.Update(r.Context(), userID, &input)
	if err != nil {
		var validation *preference.ValidationError
		if errors.As(err, &validation) {
			response.BadRequest(w, r, "invalid preferences", validation.Errors)
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to update preferences")
		response.InternalError(w, r, "failed to update preferences")
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}
