// Package repo contains all database access logic for the dispatch service.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test. Begin on a
// pgx.Tx opens a savepoint, so batch writes nest cleanly inside test
// transactions.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TripChange pairs the trip as it was read with the state to commit.
// Current.Status and Current.Version are the compare-and-set guard.
type TripChange struct {
	Current domain.Trip
	Next    domain.Trip
}

// TripRepo defines the persistence operations for Trips.
// The service layer depends on this interface, not the concrete Postgres implementation,
// which allows the service to be unit-tested with a mock or the in-memory store.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record (with DB-generated
	// id, version, created_at, and updated_at populated).
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// ListPaged returns one page of trips matching f, ordered by pickup time
	// descending, and the total count.
	ListPaged(ctx context.Context, f domain.TripFilter, p domain.PaginationParams) ([]domain.Trip, int64, error)

	// ListBySeries returns the instances of a recurring series in status,
	// ordered by pickup time.
	ListBySeries(ctx context.Context, seriesID uuid.UUID, status domain.Status) ([]domain.Trip, error)

	// CompareAndSwap writes c.Next only if the stored status and version
	// still equal c.Current's. Returns domain.ErrConflict when they do not and
	// domain.ErrNotFound when the trip is gone.
	CompareAndSwap(ctx context.Context, c TripChange) (domain.Trip, error)

	// ApplyBatch commits every change in one transaction. If any row fails
	// its compare-and-set, nothing is written and domain.ErrPartialBatch is
	// returned.
	ApplyBatch(ctx context.Context, changes []TripChange) ([]domain.Trip, error)
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `
	id, recurring_series_id, program_id, corporate_client_id, client_id, driver_id,
	kind, pickup_at, return_at, pickup_address, dropoff_address, status,
	actual_pickup_at, client_onboard_at, client_dropoff_at,
	wait_started_at, wait_stopped_at, completed_at,
	decline_reason, declined_by, declined_at,
	created_by, updated_by, version, created_at, updated_at`

// Create inserts a new trip row and returns the full persisted record.
// A trip with no status starts as an order.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (
			recurring_series_id, program_id, corporate_client_id, client_id, driver_id,
			kind, pickup_at, return_at, pickup_address, dropoff_address, status,
			created_by, updated_by)
		VALUES (
			@recurring_series_id, @program_id, @corporate_client_id, @client_id, @driver_id,
			@kind, @pickup_at, @return_at, @pickup_address, @dropoff_address, @status,
			@created_by, @created_by)
		RETURNING ` + tripColumns

	if trip.Status == "" {
		trip.Status = domain.StatusOrder
	}
	args := pgx.NamedArgs{
		"recurring_series_id": trip.RecurringSeriesID, // nil becomes NULL
		"program_id":          trip.ProgramID,
		"corporate_client_id": trip.CorporateClientID,
		"client_id":           trip.ClientID,
		"driver_id":           trip.DriverID,
		"kind":                string(trip.Kind),
		"pickup_at":           trip.PickupAt,
		"return_at":           trip.ReturnAt,
		"pickup_address":      trip.PickupAddress,
		"dropoff_address":     trip.DropoffAddress,
		"status":              string(trip.Status),
		"created_by":          trip.CreatedBy,
	}

	result, err := scanTrip(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips WHERE id = @id`

	result, err := scanTrip(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
	}
	return result, nil
}

// ListPaged returns one page of visible trips plus the total match count.
func (r *pgTripRepo) ListPaged(ctx context.Context, f domain.TripFilter, p domain.PaginationParams) ([]domain.Trip, int64, error) {
	if f.Restricted && len(f.ProgramIDs) == 0 {
		return []domain.Trip{}, 0, nil
	}

	const where = `
		WHERE (@corp::uuid IS NULL OR corporate_client_id = @corp)
		  AND (NOT @restricted::boolean OR program_id = ANY(@programs::uuid[]))
		  AND (@status::text = '' OR status = @status::text)`

	programs := f.ProgramIDs
	if programs == nil {
		programs = []uuid.UUID{}
	}
	args := pgx.NamedArgs{
		"corp":       nullableUUID(f.CorporateClientID),
		"restricted": f.Restricted,
		"programs":   programs,
		"status":     string(f.Status),
		"limit":      p.Limit,
		"offset":     p.Offset(),
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM trips`+where, args).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: count: %w", err)
	}

	q := `SELECT ` + tripColumns + ` FROM trips` + where + `
		ORDER BY pickup_at DESC, id
		LIMIT @limit OFFSET @offset`
	trips, err := r.queryTrips(ctx, q, args)
	if err != nil {
		return nil, 0, fmt.Errorf("repo.TripRepo.ListPaged: %w", err)
	}
	return trips, total, nil
}

// ListBySeries returns the series instances currently in status.
func (r *pgTripRepo) ListBySeries(ctx context.Context, seriesID uuid.UUID, status domain.Status) ([]domain.Trip, error) {
	q := `SELECT ` + tripColumns + ` FROM trips
		WHERE recurring_series_id = @series_id AND status = @status
		ORDER BY pickup_at, id`

	trips, err := r.queryTrips(ctx, q, pgx.NamedArgs{"series_id": seriesID, "status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ListBySeries: %w", err)
	}
	return trips, nil
}

// CompareAndSwap updates every mutable lifecycle column guarded by the
// expected status and version, bumping the version by one.
func (r *pgTripRepo) CompareAndSwap(ctx context.Context, c TripChange) (domain.Trip, error) {
	result, err := r.cas(ctx, r.db, c)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.CompareAndSwap: %w", err)
	}
	return result, nil
}

// ApplyBatch runs every compare-and-set inside one transaction.
func (r *pgTripRepo) ApplyBatch(ctx context.Context, changes []TripChange) ([]domain.Trip, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ApplyBatch: begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	out := make([]domain.Trip, 0, len(changes))
	for _, c := range changes {
		t, err := r.cas(ctx, tx, c)
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("repo.TripRepo.ApplyBatch: trip %s: %w", c.Current.ID, domain.ErrPartialBatch)
		}
		if err != nil {
			return nil, fmt.Errorf("repo.TripRepo.ApplyBatch: trip %s: %w", c.Current.ID, err)
		}
		out = append(out, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("repo.TripRepo.ApplyBatch: commit: %w", err)
	}
	return out, nil
}

func (r *pgTripRepo) cas(ctx context.Context, conn db, c TripChange) (domain.Trip, error) {
	const q = `
		UPDATE trips
		SET driver_id         = @driver_id,
		    status            = @status,
		    actual_pickup_at  = @actual_pickup_at,
		    client_onboard_at = @client_onboard_at,
		    client_dropoff_at = @client_dropoff_at,
		    wait_started_at   = @wait_started_at,
		    wait_stopped_at   = @wait_stopped_at,
		    completed_at      = @completed_at,
		    decline_reason    = @decline_reason,
		    declined_by       = @declined_by,
		    declined_at       = @declined_at,
		    updated_by        = @updated_by,
		    updated_at        = @updated_at,
		    version           = version + 1
		WHERE id = @id
		  AND status = @expected_status
		  AND version = @expected_version
		RETURNING ` + tripColumns

	n := c.Next
	var (
		reason     *string
		declinedBy *uuid.UUID
		declinedAt *time.Time
	)
	if n.Decline != nil {
		s := string(n.Decline.Reason)
		reason, declinedBy, declinedAt = &s, &n.Decline.DeclinedBy, &n.Decline.DeclinedAt
	}
	updatedAt := n.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	args := pgx.NamedArgs{
		"id":                c.Current.ID,
		"expected_status":   string(c.Current.Status),
		"expected_version":  c.Current.Version,
		"driver_id":         n.DriverID,
		"status":            string(n.Status),
		"actual_pickup_at":  n.ActualPickupAt,
		"client_onboard_at": n.ClientOnboardAt,
		"client_dropoff_at": n.ClientDropoffAt,
		"wait_started_at":   n.WaitStartedAt,
		"wait_stopped_at":   n.WaitStoppedAt,
		"completed_at":      n.CompletedAt,
		"decline_reason":    reason,
		"declined_by":       declinedBy,
		"declined_at":       declinedAt,
		"updated_by":        n.UpdatedBy,
		"updated_at":        updatedAt,
	}

	result, err := scanTrip(conn.QueryRow(ctx, q, args))
	if errors.Is(err, domain.ErrNotFound) {
		// Zero rows: either the guard failed or the trip does not exist.
		var exists bool
		if qerr := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = @id)`,
			pgx.NamedArgs{"id": c.Current.ID}).Scan(&exists); qerr != nil {
			return domain.Trip{}, qerr
		}
		if exists {
			return domain.Trip{}, domain.ErrConflict
		}
		return domain.Trip{}, domain.ErrNotFound
	}
	return result, err
}

func (r *pgTripRepo) queryTrips(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Trip, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []domain.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return trips, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanTrip to be
// reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID, nullable timestamp, and decline column conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t                               domain.Trip
		id, seriesID, programID, corpID pgtype.UUID
		clientID, driverID, declinedBy  pgtype.UUID
		createdBy, updatedBy            pgtype.UUID
		kind, status                    string
		returnAt, actualPickup, onboard pgtype.Timestamptz
		dropoff, waitStart, waitStop    pgtype.Timestamptz
		completed, declinedAt           pgtype.Timestamptz
		declineReason                   pgtype.Text
	)

	err := s.Scan(
		&id, &seriesID, &programID, &corpID, &clientID, &driverID,
		&kind, &t.PickupAt, &returnAt, &t.PickupAddress, &t.DropoffAddress, &status,
		&actualPickup, &onboard, &dropoff,
		&waitStart, &waitStop, &completed,
		&declineReason, &declinedBy, &declinedAt,
		&createdBy, &updatedBy, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.RecurringSeriesID = uuidPtr(seriesID)
	t.ProgramID = uuid.UUID(programID.Bytes)
	t.CorporateClientID = uuid.UUID(corpID.Bytes)
	t.ClientID = uuid.UUID(clientID.Bytes)
	t.DriverID = uuidPtr(driverID)
	t.Kind = domain.Kind(kind)
	t.Status = domain.Status(status)
	t.ReturnAt = timePtr(returnAt)
	t.ActualPickupAt = timePtr(actualPickup)
	t.ClientOnboardAt = timePtr(onboard)
	t.ClientDropoffAt = timePtr(dropoff)
	t.WaitStartedAt = timePtr(waitStart)
	t.WaitStoppedAt = timePtr(waitStop)
	t.CompletedAt = timePtr(completed)
	t.CreatedBy = uuid.UUID(createdBy.Bytes)
	t.UpdatedBy = uuid.UUID(updatedBy.Bytes)

	if declineReason.Valid {
		t.Decline = &domain.Decline{
			Reason:     domain.DeclineReason(declineReason.String),
			DeclinedBy: uuid.UUID(declinedBy.Bytes),
			DeclinedAt: declinedAt.Time,
		}
	}

	return t, nil
}

func uuidPtr(v pgtype.UUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := uuid.UUID(v.Bytes)
	return &id
}

func timePtr(v pgtype.Timestamptz) *time.Time {
	if !v.Valid {
		return nil
	}
	ts := v.Time
	return &ts
}

// nullableUUID maps uuid.Nil to SQL NULL.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
