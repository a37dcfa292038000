package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// SeriesInstance is one dated occurrence in a CreateSeriesRequest.
type SeriesInstance struct {
	Kind     domain.Kind `json:"kind"`
	PickupAt time.Time   `json:"pickup_at"`
	ReturnAt *time.Time  `json:"return_at,omitempty"`
	DriverID *uuid.UUID  `json:"driver_id,omitempty"`
}

// CreateSeriesRequest is the body of POST /series.
type CreateSeriesRequest struct {
	ProgramID      uuid.UUID        `json:"program_id"`
	ClientID       uuid.UUID        `json:"client_id"`
	Cadence        string           `json:"cadence"`
	PickupAddress  string           `json:"pickup_address"`
	DropoffAddress string           `json:"dropoff_address"`
	Instances      []SeriesInstance `json:"instances"`
}

// SeriesResponse is the body returned by POST /series and GET /series/{id}.
// On GET, Trips holds only the instances still in order.
type SeriesResponse struct {
	Series domain.RecurringSeries `json:"series"`
	Trips  []domain.Trip          `json:"trips"`
}

// CreateSeries handles POST /series.
func (s *Server) CreateSeries(w http.ResponseWriter, r *http.Request) {
	var body CreateSeriesRequest
	if err := decode(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	series := domain.RecurringSeries{
		ProgramID:      body.ProgramID,
		ClientID:       body.ClientID,
		Cadence:        body.Cadence,
		PickupAddress:  body.PickupAddress,
		DropoffAddress: body.DropoffAddress,
	}
	instances := make([]domain.Trip, len(body.Instances))
	for i, in := range body.Instances {
		instances[i] = domain.Trip{Kind: in.Kind, PickupAt: in.PickupAt, ReturnAt: in.ReturnAt, DriverID: in.DriverID}
	}

	created, trips, err := s.trips.CreateSeries(r.Context(), actor(r), series, instances)
	if err != nil {
		s.writeError(w, r, err, "program not found")
		return
	}
	writeJSON(w, http.StatusCreated, SeriesResponse{Series: created, Trips: trips})
}

// GetSeries handles GET /series/{id}.
func (s *Server) GetSeries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	series, open, err := s.trips.GetSeries(r.Context(), actor(r), id)
	if err != nil {
		s.writeError(w, r, err, "series not found")
		return
	}
	writeJSON(w, http.StatusOK, SeriesResponse{Series: series, Trips: open})
}
