package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/transit-dispatch/internal/domain"
)

// SeriesRepo defines the persistence operations for recurring series.
type SeriesRepo interface {
	// Create inserts the series and all of its instances in one transaction.
	// Each instance gets the series id; the returned trips are in input order.
	Create(ctx context.Context, series domain.RecurringSeries, instances []domain.Trip) (domain.RecurringSeries, []domain.Trip, error)

	// GetByID retrieves a series by primary key.
	// Returns domain.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (domain.RecurringSeries, error)
}

type pgSeriesRepo struct {
	db db
}

// NewSeriesRepo constructs a SeriesRepo backed by the provided db connection.
func NewSeriesRepo(db db) SeriesRepo {
	return &pgSeriesRepo{db: db}
}

const seriesColumns = `id, program_id, corporate_client_id, client_id, cadence,
	pickup_address, dropoff_address, created_by, created_at`

// Create writes the series row, then every instance, rolling back on any error.
func (r *pgSeriesRepo) Create(ctx context.Context, series domain.RecurringSeries, instances []domain.Trip) (domain.RecurringSeries, []domain.Trip, error) {
	const q = `
		INSERT INTO recurring_series (
			program_id, corporate_client_id, client_id, cadence,
			pickup_address, dropoff_address, created_by)
		VALUES (
			@program_id, @corporate_client_id, @client_id, @cadence,
			@pickup_address, @dropoff_address, @created_by)
		RETURNING ` + seriesColumns

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("repo.SeriesRepo.Create: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	args := pgx.NamedArgs{
		"program_id":          series.ProgramID,
		"corporate_client_id": series.CorporateClientID,
		"client_id":           series.ClientID,
		"cadence":             series.Cadence,
		"pickup_address":      series.PickupAddress,
		"dropoff_address":     series.DropoffAddress,
		"created_by":          series.CreatedBy,
	}
	created, err := scanSeries(tx.QueryRow(ctx, q, args))
	if err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("repo.SeriesRepo.Create: %w", err)
	}

	trips := NewTripRepo(tx)
	out := make([]domain.Trip, 0, len(instances))
	for _, inst := range instances {
		sid := created.ID
		inst.RecurringSeriesID = &sid
		t, err := trips.Create(ctx, inst)
		if err != nil {
			return domain.RecurringSeries{}, nil, fmt.Errorf("repo.SeriesRepo.Create: instance: %w", err)
		}
		out = append(out, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RecurringSeries{}, nil, fmt.Errorf("repo.SeriesRepo.Create: commit: %w", err)
	}
	return created, out, nil
}

// GetByID retrieves a series by primary key.
func (r *pgSeriesRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.RecurringSeries, error) {
	q := `SELECT ` + seriesColumns + ` FROM recurring_series WHERE id = @id`

	s, err := scanSeries(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.RecurringSeries{}, fmt.Errorf("repo.SeriesRepo.GetByID: %w", err)
	}
	return s, nil
}

func scanSeries(s scanner) (domain.RecurringSeries, error) {
	var (
		rs                                  domain.RecurringSeries
		id, programID, corpID, clientID, by pgtype.UUID
	)
	err := s.Scan(&id, &programID, &corpID, &clientID, &rs.Cadence,
		&rs.PickupAddress, &rs.DropoffAddress, &by, &rs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RecurringSeries{}, domain.ErrNotFound
		}
		return domain.RecurringSeries{}, err
	}
	rs.ID = uuid.UUID(id.Bytes)
	rs.ProgramID = uuid.UUID(programID.Bytes)
	rs.CorporateClientID = uuid.UUID(corpID.Bytes)
	rs.ClientID = uuid.UUID(clientID.Bytes)
	rs.CreatedBy = uuid.UUID(by.Bytes)
	return rs, nil
}
