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

// TagRepo defines the persistence operations for per-trip notification tags.
type TagRepo interface {
	// Add tags a user on a trip. Idempotent: no error if already tagged.
	Add(ctx context.Context, tag domain.NotificationTag) error

	// Remove untags a user. Returns domain.ErrNotFound if the tag does not exist.
	Remove(ctx context.Context, tripID, userID uuid.UUID) error

	// ListByTrip returns every tag on a trip, oldest first.
	ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.NotificationTag, error)
}

// pgTagRepo is the Postgres implementation of TagRepo.
type pgTagRepo struct {
	db db
}

// NewTagRepo constructs a TagRepo backed by the provided db connection.
func NewTagRepo(db db) TagRepo {
	return &pgTagRepo{db: db}
}

// Add inserts a tag row. Idempotent via ON CONFLICT DO NOTHING; the first
// creator is preserved.
func (r *pgTagRepo) Add(ctx context.Context, tag domain.NotificationTag) error {
	const q = `
		INSERT INTO notification_tags (trip_id, user_id, created_by)
		VALUES (@trip_id, @user_id, @created_by)
		ON CONFLICT (trip_id, user_id) DO NOTHING`

	args := pgx.NamedArgs{
		"trip_id":    tag.TripID,
		"user_id":    tag.UserID,
		"created_by": tag.CreatedBy,
	}
	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("repo.TagRepo.Add: %w", err)
	}
	return nil
}

// Remove deletes the (trip, user) tag.
func (r *pgTagRepo) Remove(ctx context.Context, tripID, userID uuid.UUID) error {
	const q = `DELETE FROM notification_tags WHERE trip_id = @trip_id AND user_id = @user_id`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("repo.TagRepo.Remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.TagRepo.Remove: %w", domain.ErrNotFound)
	}
	return nil
}

// ListByTrip returns every tag on a trip ordered by creation time.
func (r *pgTagRepo) ListByTrip(ctx context.Context, tripID uuid.UUID) ([]domain.NotificationTag, error) {
	const q = `
		SELECT trip_id, user_id, created_by, created_at
		FROM notification_tags
		WHERE trip_id = @trip_id
		ORDER BY created_at, user_id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByTrip: %w", err)
	}
	defer rows.Close()

	tags := []domain.NotificationTag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.TagRepo.ListByTrip: scan: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.TagRepo.ListByTrip: rows: %w", err)
	}
	return tags, nil
}

// scanTag maps a single database row into a domain.NotificationTag.
func scanTag(s scanner) (domain.NotificationTag, error) {
	var (
		t                    domain.NotificationTag
		tripID, userID, byID pgtype.UUID
	)
	err := s.Scan(&tripID, &userID, &byID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotificationTag{}, domain.ErrNotFound
		}
		return domain.NotificationTag{}, err
	}
	t.TripID = uuid.UUID(tripID.Bytes)
	t.UserID = uuid.UUID(userID.Bytes)
	t.CreatedBy = uuid.UUID(byID.Bytes)
	return t, nil
}
