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

// PreferenceRepo defines the persistence operations for notification
// preferences. Only explicitly stored rows are returned; applying system
// defaults is the service's job.
type PreferenceRepo interface {
	// Upsert stores enabled for (userID, eventType) and returns the stored row.
	Upsert(ctx context.Context, p domain.Preference) (domain.Preference, error)

	// Get returns one stored preference.
	// Returns domain.ErrNotFound if the user never set it.
	Get(ctx context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error)

	// ListByUser returns every stored preference of a user ordered by event type.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error)

	// ListForEvent returns the stored setting for eventType of each given
	// user. Users with no stored row are absent from the map.
	ListForEvent(ctx context.Context, eventType domain.EventType, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)

	// EnsureDefaults inserts a row for every event type the user has not set
	// yet, using defaults. Existing rows are left untouched.
	EnsureDefaults(ctx context.Context, userID uuid.UUID, defaults map[domain.EventType]bool) error
}

type pgPreferenceRepo struct {
	db db
}

// NewPreferenceRepo constructs a PreferenceRepo backed by the provided db connection.
func NewPreferenceRepo(db db) PreferenceRepo {
	return &pgPreferenceRepo{db: db}
}

// Upsert writes or overwrites one preference row.
func (r *pgPreferenceRepo) Upsert(ctx context.Context, p domain.Preference) (domain.Preference, error) {
	const q = `
		INSERT INTO notification_preferences (user_id, event_type, enabled)
		VALUES (@user_id, @event_type, @enabled)
		ON CONFLICT (user_id, event_type)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = now()
		RETURNING user_id, event_type, enabled, updated_at`

	args := pgx.NamedArgs{
		"user_id":    p.UserID,
		"event_type": string(p.EventType),
		"enabled":    p.Enabled,
	}
	result, err := scanPreference(r.db.QueryRow(ctx, q, args))
	if err != nil {
		return domain.Preference{}, fmt.Errorf("repo.PreferenceRepo.Upsert: %w", err)
	}
	return result, nil
}

// Get retrieves one stored preference.
func (r *pgPreferenceRepo) Get(ctx context.Context, userID uuid.UUID, eventType domain.EventType) (domain.Preference, error) {
	const q = `
		SELECT user_id, event_type, enabled, updated_at
		FROM notification_preferences
		WHERE user_id = @user_id AND event_type = @event_type`

	result, err := scanPreference(r.db.QueryRow(ctx, q, pgx.NamedArgs{"user_id": userID, "event_type": string(eventType)}))
	if err != nil {
		return domain.Preference{}, fmt.Errorf("repo.PreferenceRepo.Get: %w", err)
	}
	return result, nil
}

// ListByUser returns a user's stored preferences.
func (r *pgPreferenceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Preference, error) {
	const q = `
		SELECT user_id, event_type, enabled, updated_at
		FROM notification_preferences
		WHERE user_id = @user_id
		ORDER BY event_type`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("repo.PreferenceRepo.ListByUser: %w", err)
	}
	defer rows.Close()

	prefs := []domain.Preference{}
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.PreferenceRepo.ListByUser: scan: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.PreferenceRepo.ListByUser: rows: %w", err)
	}
	return prefs, nil
}

// ListForEvent reads the stored settings of many users for one event type
// in a single query.
func (r *pgPreferenceRepo) ListForEvent(ctx context.Context, eventType domain.EventType, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	const q = `
		SELECT user_id, enabled
		FROM notification_preferences
		WHERE event_type = @event_type AND user_id = ANY(@user_ids::uuid[])`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"event_type": string(eventType), "user_ids": userIDs})
	if err != nil {
		return nil, fmt.Errorf("repo.PreferenceRepo.ListForEvent: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      pgtype.UUID
			enabled bool
		)
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("repo.PreferenceRepo.ListForEvent: scan: %w", err)
		}
		out[uuid.UUID(id.Bytes)] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.PreferenceRepo.ListForEvent: rows: %w", err)
	}
	return out, nil
}

// EnsureDefaults materialises the defaults for a user in one batch.
func (r *pgPreferenceRepo) EnsureDefaults(ctx context.Context, userID uuid.UUID, defaults map[domain.EventType]bool) error {
	const q = `
		INSERT INTO notification_preferences (user_id, event_type, enabled)
		VALUES (@user_id, @event_type, @enabled)
		ON CONFLICT (user_id, event_type) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range domain.EventTypes() {
		enabled, ok := defaults[e]
		if !ok {
			enabled = true
		}
		batch.Queue(q, pgx.NamedArgs{"user_id": userID, "event_type": string(e), "enabled": enabled})
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repo.PreferenceRepo.EnsureDefaults: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("repo.PreferenceRepo.EnsureDefaults: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repo.PreferenceRepo.EnsureDefaults: commit: %w", err)
	}
	return nil
}

func scanPreference(s scanner) (domain.Preference, error) {
	var (
		p         domain.Preference
		userID    pgtype.UUID
		eventType string
	)
	err := s.Scan(&userID, &eventType, &p.Enabled, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Preference{}, domain.ErrNotFound
		}
		return domain.Preference{}, err
	}
	p.UserID = uuid.UUID(userID.Bytes)
	p.EventType = domain.EventType(eventType)
	return p, nil
}
