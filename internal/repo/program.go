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

// ProgramRepo reads and writes programs. A program's corporate client is the
// authority the notification router checks event scopes against.
type ProgramRepo interface {
	// Create inserts a program and returns it with its generated id.
	Create(ctx context.Context, p domain.Program) (domain.Program, error)

	// GetByID returns a program. Returns domain.ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Program, error)
}

type pgProgramRepo struct {
	db db
}

// NewProgramRepo constructs a ProgramRepo backed by the provided db connection.
func NewProgramRepo(db db) ProgramRepo {
	return &pgProgramRepo{db: db}
}

// Create inserts a program row.
func (r *pgProgramRepo) Create(ctx context.Context, p domain.Program) (domain.Program, error) {
	const q = `
		INSERT INTO programs (corporate_client_id, name)
		VALUES (@corporate_client_id, @name)
		RETURNING id, corporate_client_id, name`

	result, err := scanProgram(r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"corporate_client_id": p.CorporateClientID,
		"name":                p.Name,
	}))
	if err != nil {
		return domain.Program{}, fmt.Errorf("repo.ProgramRepo.Create: %w", err)
	}
	return result, nil
}

// GetByID retrieves a program by primary key.
func (r *pgProgramRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Program, error) {
	const q = `SELECT id, corporate_client_id, name FROM programs WHERE id = @id`

	result, err := scanProgram(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Program{}, fmt.Errorf("repo.ProgramRepo.GetByID: %w", err)
	}
	return result, nil
}

func scanProgram(s scanner) (domain.Program, error) {
	var (
		p          domain.Program
		id, corpID pgtype.UUID
	)
	if err := s.Scan(&id, &corpID, &p.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Program{}, domain.ErrNotFound
		}
		return domain.Program{}, err
	}
	p.ID = uuid.UUID(id.Bytes)
	p.CorporateClientID = uuid.UUID(corpID.Bytes)
	return p, nil
}
