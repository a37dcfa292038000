// Package app wires the dispatch service together. cmd/api uses it against
// Postgres and RabbitMQ; the end-to-end tests use it against the in-memory
// store.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pkordes/transit-dispatch/internal/auth"
	"github.com/pkordes/transit-dispatch/internal/config"
	"github.com/pkordes/transit-dispatch/internal/handler"
	"github.com/pkordes/transit-dispatch/internal/hub"
	"github.com/pkordes/transit-dispatch/internal/middleware"
	"github.com/pkordes/transit-dispatch/internal/notify"
	"github.com/pkordes/transit-dispatch/internal/repo"
	"github.com/pkordes/transit-dispatch/internal/service"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Stores is the persistence the application runs on.
type Stores struct {
	Trips       repo.TripRepo
	Series      repo.SeriesRepo
	Tags        repo.TagRepo
	Preferences repo.PreferenceRepo
	Programs    repo.ProgramRepo
	Users       repo.UserRepo
}

// PostgresStores returns Stores backed by pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Trips:       repo.NewTripRepo(pool),
		Series:      repo.NewSeriesRepo(pool),
		Tags:        repo.NewTagRepo(pool),
		Preferences: repo.NewPreferenceRepo(pool),
		Programs:    repo.NewProgramRepo(pool),
		Users:       repo.NewUserRepo(pool),
	}
}

// App is one running instance of the service.
type App struct {
	Tokens   *auth.Tokens
	Hub      *hub.Hub
	Pipeline *notify.Pipeline
	Trips    *service.TripService
	Tags     *service.TagService
	Prefs    *service.PreferenceService

	// Handler serves the whole HTTP surface including /ws.
	Handler http.Handler

	logger *slog.Logger
}

// New builds the application. publisher may be nil, in which case trip
// events are only delivered to live sessions.
func New(cfg config.Config, stores Stores, publisher notify.Publisher, logger *slog.Logger) *App {
	n := cfg.Notifications

	tokens := auth.NewTokens(cfg.JWTSecret, 0)
	sessions := hub.New(logger.With("component", "hub"), hub.Options{
		SendQueue:    n.SessionQueue,
		PingInterval: n.PingInterval(),
	})

	prefs := service.NewPreferenceService(stores.Preferences, cfg.Preferences)
	router := notify.NewRouter(stores.Trips, stores.Tags, stores.Programs, stores.Users, prefs)
	pipeline := notify.NewPipeline(router, sessions, publisher, logger.With("component", "pipeline"), notify.Options{
		QueueSize: n.QueueSize,
		Workers:   n.Workers,
	})

	trips := service.NewTripService(stores.Trips, stores.Series, stores.Programs, stores.Users, pipeline)
	tags := service.NewTagService(stores.Tags, stores.Trips)

	srv := handler.NewServer(trips, tags, prefs, sessions, logger, handler.Options{
		AllowedOrigins: cfg.CORSOrigins,
		WriteWait:      n.WriteTimeout(),
	})

	// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodyBytes))
	r.Mount("/", srv.Routes(middleware.NewAuthHandler(tokens)))

	return &App{
		Tokens:   tokens,
		Hub:      sessions,
		Pipeline: pipeline,
		Trips:    trips,
		Tags:     tags,
		Prefs:    prefs,
		Handler:  r,
		logger:   logger,
	}
}

// Run drives the notification pipeline until ctx ends, then closes every
// live session.
func (a *App) Run(ctx context.Context) error {
	err := a.Pipeline.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if herr := a.Hub.Shutdown(shutdownCtx); herr != nil {
		a.logger.Warn("hub shutdown", "err", herr)
	}

	dropped, delivered := a.Pipeline.Stats()
	a.logger.Info("notification pipeline stopped",
		"dropped", dropped, "delivered", delivered, "feed_dropped", a.Pipeline.FeedDropped())
	return err
}
