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

// UserRepo reads the user directory. The router uses it to expand
// role-wide recipient sets such as "every super admin"; the trip service
// uses it to check driver assignments.
type UserRepo interface {
	// Create inserts a user and returns it with its generated id.
	Create(ctx context.Context, u domain.User) (domain.User, error)

	// GetByID returns a user. Returns domain.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// ListIDsByRole returns the ids of every user holding role.
	ListIDsByRole(ctx context.Context, role domain.Role) ([]uuid.UUID, error)
}

type pgUserRepo struct {
	db db
}

// NewUserRepo constructs a UserRepo backed by the provided db connection.
func NewUserRepo(db db) UserRepo {
	return &pgUserRepo{db: db}
}

// Create inserts a user row. A zero ProgramID or CorporateClientID is stored
// as NULL.
func (r *pgUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	const q = `
		INSERT INTO users (role, program_id, corporate_client_id)
		VALUES (@role, @program_id, @corporate_client_id)
		RETURNING id, role, program_id, corporate_client_id, created_at`

	out, err := scanUser(r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"role":                u.Role.String(),
		"program_id":          nullableUUID(u.ProgramID),
		"corporate_client_id": nullableUUID(u.CorporateClientID),
	}))
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.Create: %w", err)
	}
	return out, nil
}

// GetByID retrieves a user by primary key.
func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const q = `
		SELECT id, role, program_id, corporate_client_id, created_at
		FROM users WHERE id = @id`

	out, err := scanUser(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.GetByID: %w", err)
	}
	return out, nil
}

// ListIDsByRole returns user ids for a role ordered by id.
func (r *pgUserRepo) ListIDsByRole(ctx context.Context, role domain.Role) ([]uuid.UUID, error) {
	const q = `SELECT id FROM users WHERE role = @role ORDER BY id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"role": role.String()})
	if err != nil {
		return nil, fmt.Errorf("repo.UserRepo.ListIDsByRole: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo.UserRepo.ListIDsByRole: scan: %w", err)
		}
		ids = append(ids, uuid.UUID(id.Bytes))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.UserRepo.ListIDsByRole: rows: %w", err)
	}
	return ids, nil
}

func scanUser(s scanner) (domain.User, error) {
	var (
		out               domain.User
		id, program, corp pgtype.UUID
		role              string
	)
	if err := s.Scan(&id, &role, &program, &corp, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}

	var err error
	out.ID = uuid.UUID(id.Bytes)
	if out.Role, err = domain.ParseRole(role); err != nil {
		return domain.User{}, err
	}
	if program.Valid {
		out.ProgramID = uuid.UUID(program.Bytes)
	}
	if corp.Valid {
		out.CorporateClientID = uuid.UUID(corp.Bytes)
	}
	return out, nil
}
