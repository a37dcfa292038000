package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// PreferenceRequest is the body of PUT /me/preferences/{eventType}.
type PreferenceRequest struct {
	Enabled *bool `json:"enabled"`
}

// ListPreferences handles GET /me/preferences.
func (s *Server) ListPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.prefs.List(r.Context(), actor(r).UserID)
	if err != nil {
		s.writeError(w, r, err, "preferences not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prefs})
}

// GetPreference handles GET /me/preferences/{eventType}.
func (s *Server) GetPreference(w http.ResponseWriter, r *http.Request) {
	eventType := domain.EventType(chi.URLParam(r, "eventType"))
	pref, err := s.prefs.Get(r.Context(), actor(r).UserID, eventType)
	if err != nil {
		s.writeError(w, r, err, "event type not found")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// SetPreference handles PUT /me/preferences/{eventType}. Users only ever
// change their own preferences.
func (s *Server) SetPreference(w http.ResponseWriter, r *http.Request) {
	var body PreferenceRequest
	if err := decode(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}
	if body.Enabled == nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("enabled is required"))
		return
	}

	eventType := domain.EventType(chi.URLParam(r, "eventType"))
	pref, err := s.prefs.Set(r.Context(), actor(r).UserID, eventType, *body.Enabled)
	if err != nil {
		s.writeError(w, r, err, "event type not found")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}
