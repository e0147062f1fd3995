package mediator

import (
	"context"
	"fmt"

	"leaseflow/db"
)

// Repository provides read access to per-dispute mediator assignments.
type Repository struct {
	q db.Querier
}

// NewRepository wires a pgx-backed repository implementation.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// IsAuthorized reports whether identity is assigned to mediate disputeID.
func (r *Repository) IsAuthorized(ctx context.Context, disputeID uint64, identity string) (bool, error) {
	if identity == "" {
		return false, nil
	}

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM mediator_assignments
			WHERE dispute_id = $1 AND mediator = $2
		)
	`

	var ok bool
	if err := r.q.QueryRow(ctx, query, int64(disputeID), identity).Scan(&ok); err != nil {
		return false, fmt.Errorf("mediator: check assignment: %w", err)
	}
	return ok, nil
}

// ListByDispute returns the mediators assigned to disputeID ordered by identity.
func (r *Repository) ListByDispute(ctx context.Context, disputeID uint64) ([]string, error) {
	const query = `
		SELECT mediator
		FROM mediator_assignments
		WHERE dispute_id = $1
		ORDER BY mediator ASC
	`

	rows, err := r.q.Query(ctx, query, int64(disputeID))
	if err != nil {
		return nil, fmt.Errorf("mediator: list: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 4)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("mediator: scan: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mediator: iterate: %w", err)
	}
	return out, nil
}
