package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"leaseflow/db"
)

var (
	// ErrPrincipalNotFound signals that the principal does not exist.
	ErrPrincipalNotFound = errors.New("auth: principal not found")
	// ErrDuplicatePrincipal signals that the identity is already registered.
	ErrDuplicatePrincipal = errors.New("auth: principal already exists")
)

// Repository handles data access for authentication.
type Repository interface {
	CreatePrincipal(ctx context.Context, params CreatePrincipalParams) (Principal, error)
	GetPrincipal(ctx context.Context, id string) (Principal, error)
}

// CreatePrincipalParams contains write parameters for creating principals.
type CreatePrincipalParams struct {
	ID           string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *PGRepository {
	return &PGRepository{q: q}
}

func (r *PGRepository) CreatePrincipal(ctx context.Context, params CreatePrincipalParams) (Principal, error) {
	const insertSQL = `
		INSERT INTO principals (id, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, password_hash, role, created_at, updated_at
	`

	p, err := scanPrincipal(r.q.QueryRow(ctx, insertSQL, params.ID, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Principal{}, ErrDuplicatePrincipal
		}
		return Principal{}, fmt.Errorf("auth: create principal: %w", err)
	}
	return p, nil
}

func (r *PGRepository) GetPrincipal(ctx context.Context, id string) (Principal, error) {
	const selectSQL = `
		SELECT id, password_hash, role, created_at, updated_at
		FROM principals
		WHERE id = $1
	`

	p, err := scanPrincipal(r.q.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrPrincipalNotFound
		}
		return Principal{}, fmt.Errorf("auth: get principal: %w", err)
	}
	return p, nil
}

// Reservations reports ids that self-registration must not claim.
type Reservations interface {
	IsReserved(ctx context.Context, id string) (bool, error)
}

// PGReservations reserves the configured ledger identities plus every id
// named by a dispute or a mediator assignment.
type PGReservations struct {
	q     db.Querier
	fixed map[string]struct{}
}

func NewReservations(q db.Querier, fixed ...string) *PGReservations {
	set := make(map[string]struct{}, len(fixed))
	for _, id := range fixed {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return &PGReservations{q: q, fixed: set}
}

func (r *PGReservations) IsReserved(ctx context.Context, id string) (bool, error) {
	if _, ok := r.fixed[id]; ok {
		return true, nil
	}
	const existsSQL = `
		SELECT EXISTS (SELECT 1 FROM disputes WHERE landlord = $1 OR tenant = $1)
		    OR EXISTS (SELECT 1 FROM mediator_assignments WHERE mediator = $1)
	`
	var reserved bool
	if err := r.q.QueryRow(ctx, existsSQL, id).Scan(&reserved); err != nil {
		return false, fmt.Errorf("auth: reservation lookup: %w", err)
	}
	return reserved, nil
}

func scanPrincipal(row pgx.Row) (Principal, error) {
	var p Principal
	if err := row.Scan(&p.ID, &p.PasswordHash, &p.Role, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Principal{}, err
	}
	return p, nil
}
