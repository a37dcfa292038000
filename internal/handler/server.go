// Package handler implements the HTTP handlers for the dispatch API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, trip.go, etc.) but all share the same Server struct so
// they can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pkordes/transit-dispatch/internal/domain"
	"github.com/pkordes/transit-dispatch/internal/hub"
)

// TripServicer defines the business operations the trip handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type TripServicer interface {
	Create(ctx context.Context, actor domain.Identity, trip domain.Trip) (domain.Trip, error)
	CreateSeries(ctx context.Context, actor domain.Identity, series domain.RecurringSeries, instances []domain.Trip) (domain.RecurringSeries, []domain.Trip, error)
	GetSeries(ctx context.Context, actor domain.Identity, id uuid.UUID) (domain.RecurringSeries, []domain.Trip, error)
	GetByID(ctx context.Context, actor domain.Identity, id uuid.UUID) (domain.Trip, error)
	List(ctx context.Context, actor domain.Identity, status domain.Status, p domain.PaginationParams) ([]domain.Trip, int64, error)
	ApplyTransition(ctx context.Context, tripID uuid.UUID, cmd domain.Command) (domain.TransitionResult, error)
}

// TagServicer defines the notification tag operations.
type TagServicer interface {
	TagUser(ctx context.Context, actor domain.Identity, tripID, userID uuid.UUID) error
	Untag(ctx context.Context, actor domain.Identity, tripID, userID uuid.UUID) error
	List(ctx context.Context, actor domain.Identity, tripID uuid.UUID) ([]domain.NotificationTag, error)
}

// PreferenceServicer defines the preference operations of the current user.
type PreferenceServicer interface {
	Set(ctx context.Context, userID uuid.UUID, eventType domain.EventType, enabled bool) (domain.Preference, error)
	Get(ctx context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error)
	List(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error)
}

// SessionHub registers live websocket sessions.
type SessionHub interface {
	Register(sessionID string, identity domain.Identity, conn hub.Conn) (*hub.Session, error)
	Deregister(sessionID string)
}

// Server holds the dependencies of every handler.
type Server struct {
	trips    TripServicer
	tags     TagServicer
	prefs    PreferenceServicer
	sessions SessionHub
	logger   *slog.Logger

	upgrader  websocket.Upgrader
	writeWait time.Duration
}

// Options configures the websocket endpoint.
type Options struct {
	// AllowedOrigins limits websocket upgrades by Origin header. Empty allows
	// any origin.
	AllowedOrigins []string
	WriteWait      time.Duration
}

// NewServer constructs the Server with all its dependencies.
func NewServer(trips TripServicer, tags TagServicer, prefs PreferenceServicer, sessions SessionHub, logger *slog.Logger, opts Options) *Server {
	return &Server{
		trips:     trips,
		tags:      tags,
		prefs:     prefs,
		sessions:  sessions,
		logger:    logger,
		upgrader:  newUpgrader(opts.AllowedOrigins),
		writeWait: opts.WriteWait,
	}
}

// Routes returns the API router. Everything except /healthz runs behind authn.
func (s *Server) Routes(authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Post("/trips", s.CreateTrip)
		r.Get("/trips", s.ListTrips)
		r.Get("/trips/{id}", s.GetTrip)
		r.Post("/trips/{id}/transitions", s.ApplyTransition)

		r.Get("/trips/{id}/tags", s.ListTags)
		r.Post("/trips/{id}/tags", s.TagUser)
		r.Delete("/trips/{id}/tags/{userID}", s.UntagUser)

		r.Post("/series", s.CreateSeries)
		r.Get("/series/{id}", s.GetSeries)

		r.Get("/me/preferences", s.ListPreferences)
		r.Get("/me/preferences/{eventType}", s.GetPreference)
		r.Put("/me/preferences/{eventType}", s.SetPreference)

		r.Get("/ws", s.ServeWS)
	})
	return r
}
