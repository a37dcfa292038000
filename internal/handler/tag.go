package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// TagRequest is the body of POST /trips/{id}/tags.
type TagRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// TagUser handles POST /trips/{id}/tags. Tagging an already tagged user
// succeeds without creating a second tag.
func (s *Server) TagUser(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body TagRequest
	if err := decode(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	if err := s.tags.TagUser(r.Context(), actor(r), tripID, body.UserID); err != nil {
		s.writeError(w, r, err, "trip not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UntagUser handles DELETE /trips/{id}/tags/{userID}.
func (s *Server) UntagUser(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathUUID(w, r, "userID")
	if !ok {
		return
	}

	if err := s.tags.Untag(r.Context(), actor(r), tripID, userID); err != nil {
		s.writeError(w, r, err, "tag not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTags handles GET /trips/{id}/tags.
func (s *Server) ListTags(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	tags, err := s.tags.List(r.Context(), actor(r), tripID)
	if err != nil {
		s.writeError(w, r, err, "trip not found")
		return
	}
	if tags == nil {
		tags = []domain.NotificationTag{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tags})
}
