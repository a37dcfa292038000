package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/middleware"
)

// CreateTripRequest is the body of POST /trips.
type CreateTripRequest struct {
	ProgramID      uuid.UUID   `json:"program_id"`
	ClientID       uuid.UUID   `json:"client_id"`
	DriverID       *uuid.UUID  `json:"driver_id,omitempty"`
	Kind           domain.Kind `json:"kind"`
	PickupAt       time.Time   `json:"pickup_at"`
	ReturnAt       *time.Time  `json:"return_at,omitempty"`
	PickupAddress  string      `json:"pickup_address"`
	DropoffAddress string      `json:"dropoff_address"`
}

// TransitionRequest is the body of POST /trips/{id}/transitions.
type TransitionRequest struct {
	Action domain.Action           `json:"action"`
	Params domain.TransitionParams `json:"params"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// TripList is the body of GET /trips.
type TripList struct {
	Data       []domain.Trip `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// CreateTrip handles POST /trips.
func (s *Server) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var body CreateTripRequest
	if err := decode(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	created, err := s.trips.Create(r.Context(), actor(r), requestToTrip(body))
	if err != nil {
		s.writeError(w, r, err, "program not found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListTrips handles GET /trips.
// Supports ?status=, ?page= and ?limit= query parameters (defaults: page=1, limit=20, max=100).
func (s *Server) ListTrips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("page must be an integer"))
		return
	}
	limit, err := optionalInt(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("limit must be an integer"))
		return
	}
	params := domain.NewPaginationParams(page, limit)

	trips, total, err := s.trips.List(r.Context(), actor(r), domain.Status(q.Get("status")), params)
	if err != nil {
		s.writeError(w, r, err, "trip not found")
		return
	}
	if trips == nil {
		trips = []domain.Trip{}
	}
	writeJSON(w, http.StatusOK, TripList{
		Data:       trips,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      int(total),
			TotalPages: params.TotalPages(total),
		},
	})
}

// GetTrip handles GET /trips/{id}.
func (s *Server) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	trip, err := s.trips.GetByID(r.Context(), actor(r), id)
	if err != nil {
		s.writeError(w, r, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

// ApplyTransition handles POST /trips/{id}/transitions.
func (s *Server) ApplyTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body TransitionRequest
	if err := decode(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	result, err := s.trips.ApplyTransition(r.Context(), id, domain.Command{
		Action: body.Action,
		Actor:  actor(r),
		Params: body.Params,
	})
	if err != nil {
		s.writeError(w, r, err, "trip not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- mapping helpers --------------------------------------------------------

func requestToTrip(body CreateTripRequest) domain.Trip {
	return domain.Trip{
		ProgramID:      body.ProgramID,
		ClientID:       body.ClientID,
		DriverID:       body.DriverID,
		Kind:           body.Kind,
		PickupAt:       body.PickupAt,
		ReturnAt:       body.ReturnAt,
		PickupAddress:  body.PickupAddress,
		DropoffAddress: body.DropoffAddress,
	}
}

// actor returns the identity placed in the context by the auth middleware.
// Routes that call it are always mounted behind that middleware.
func actor(r *http.Request) domain.Identity {
	id, _ := middleware.IdentityFrom(r.Context())
	return id
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return errors.New("request body is not valid JSON for this endpoint")
	}
	return nil
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request_too_large", "request body too large"))
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, requestBody(err.Error()))
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody(name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func optionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
