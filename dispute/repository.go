package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leaseflow/db"
)

// ErrNotFound signals the dispute id is not registered.
var ErrNotFound = errors.New("dispute: not found")

// Repository reads dispute party records.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

func (r *Repository) GetByID(ctx context.Context, disputeID uint64) (Parties, error) {
	const query = `
		SELECT landlord, tenant, dispute_type, claim_amount
		FROM disputes
		WHERE id = $1
	`

	var (
		p     Parties
		claim int64
	)
	err := r.q.QueryRow(ctx, query, int64(disputeID)).Scan(&p.Landlord, &p.Tenant, &p.DisputeType, &claim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parties{}, ErrNotFound
		}
		return Parties{}, fmt.Errorf("dispute: query by id: %w", err)
	}
	p.ClaimAmount = uint64(claim)
	return p, nil
}
