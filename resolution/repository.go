package resolution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"leaseflow/db"
)

// PGRepository persists resolutions and the parameter row in PostgreSQL.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

// Lock serializes operations on disputeID until tx ends. It also covers the
// first proposal, when there is no row to lock yet.
func (r *PGRepository) Lock(ctx context.Context, tx pgx.Tx, disputeID uint64) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(disputeID)); err != nil {
		return fmt.Errorf("resolution: lock dispute %d: %w", disputeID, err)
	}
	return nil
}

func (r *PGRepository) Get(ctx context.Context, q db.Querier, disputeID uint64, forUpdate bool) (Resolution, bool, error) {
	query := `
		SELECT mediator, outcome, rationale, resolved_at, appealed, appeals_count, final, fee_paid
		FROM resolutions
		WHERE dispute_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		res        Resolution
		resolvedAt int64
		appeals    int64
	)
	err := q.QueryRow(ctx, query, int64(disputeID)).Scan(
		&res.Mediator,
		&res.Outcome,
		&res.Rationale,
		&resolvedAt,
		&res.Appealed,
		&appeals,
		&res.Final,
		&res.FeePaid,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resolution{}, false, nil
		}
		return Resolution{}, false, fmt.Errorf("resolution: get %d: %w", disputeID, err)
	}
	res.ResolvedAt = uint64(resolvedAt)
	res.AppealsCount = uint64(appeals)
	return res, true, nil
}

func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, disputeID uint64, res Resolution) error {
	const upsertSQL = `
		INSERT INTO resolutions (dispute_id, mediator, outcome, rationale, resolved_at, appealed, appeals_count, final, fee_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dispute_id) DO UPDATE
		SET mediator = EXCLUDED.mediator,
		    outcome = EXCLUDED.outcome,
		    rationale = EXCLUDED.rationale,
		    resolved_at = EXCLUDED.resolved_at,
		    appealed = EXCLUDED.appealed,
		    appeals_count = EXCLUDED.appeals_count,
		    final = EXCLUDED.final,
		    fee_paid = EXCLUDED.fee_paid,
		    updated_at = NOW()
		WHERE resolutions.final = FALSE
	`
	tag, err := tx.Exec(ctx, upsertSQL,
		int64(disputeID),
		res.Mediator,
		res.Outcome,
		res.Rationale,
		int64(res.ResolvedAt),
		res.Appealed,
		int64(res.AppealsCount),
		res.Final,
		res.FeePaid,
	)
	if err != nil {
		return fmt.Errorf("resolution: save %d: %w", disputeID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// LoadParams reads the parameter row, falling back to defaults when the row
// has not been seeded.
func (r *PGRepository) LoadParams(ctx context.Context, q db.Querier, forUpdate bool) (Params, error) {
	query := `SELECT appeal_window, max_appeals, resolution_fee FROM resolution_params WHERE id = 1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var window, maxAppeals, fee int64
	if err := q.QueryRow(ctx, query).Scan(&window, &maxAppeals, &fee); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultParams(), nil
		}
		return Params{}, fmt.Errorf("resolution: load params: %w", err)
	}
	return Params{AppealWindow: uint64(window), MaxAppeals: uint64(maxAppeals), ResolutionFee: uint64(fee)}, nil
}

func (r *PGRepository) SaveParams(ctx context.Context, tx pgx.Tx, p Params) error {
	const upsertSQL = `
		INSERT INTO resolution_params (id, appeal_window, max_appeals, resolution_fee)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET appeal_window = EXCLUDED.appeal_window,
		    max_appeals = EXCLUDED.max_appeals,
		    resolution_fee = EXCLUDED.resolution_fee,
		    updated_at = NOW()
	`
	if _, err := tx.Exec(ctx, upsertSQL, int64(p.AppealWindow), int64(p.MaxAppeals), int64(p.ResolutionFee)); err != nil {
		return fmt.Errorf("resolution: save params: %w", err)
	}
	return nil
}
