package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags test connections so chaos only kills our backends.
const ApplicationName = "leaseflow-test"

// Harness owns a migrated database for end-to-end tests: a fresh container,
// or a private schema on a reused DSN.
type Harness struct {
	database *Database
	pool     *pgxpool.Pool
	teardown func(context.Context) error
	dsn      string
}

// NewHarness migrates the database at dsn, starting a container when neither
// dsn nor EnvDSN is set.
func NewHarness(ctx context.Context, dsn string) (*Harness, error) {
	database, err := OpenDatabase(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, database.DSN, database.Shared())
	if err != nil {
		_ = database.Close(ctx)
		return nil, err
	}
	return &Harness{database: database, pool: pool, teardown: teardown, dsn: database.DSN}, nil
}

func (h *Harness) Pool() *pgxpool.Pool { return h.pool }

func (h *Harness) DSN() string { return h.dsn }

// Close drops the private schema, if any, and stops the container.
func (h *Harness) Close(ctx context.Context) error {
	h.pool.Close()
	err := h.teardown(ctx)
	if termErr := h.database.Close(ctx); err == nil {
		err = termErr
	}
	return err
}

// Reset empties mutable tables and restores default params and height.
func (h *Harness) Reset(ctx context.Context) error {
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		"TRUNCATE TABLE outbox, transfers, balances, seed_balances, resolutions, mediator_assignments, disputes, principals",
		"UPDATE resolution_params SET appeal_window = 43200, max_appeals = 1, resolution_fee = 500 WHERE id = 1",
		"UPDATE chain_head SET height = 0 WHERE id = 1",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}
	return nil
}

// Seed registers a dispute with its parties and mediators and credits
// opening balances, recording them in seed_balances.
func (h *Harness) Seed(ctx context.Context, s Seed) error {
	return SeedDatabase(ctx, h.pool, s)
}

type Seed struct {
	DisputeID uint64
	Landlord  string
	Tenant    string
	Mediators []string
	Balances  map[string]uint64
}

func SeedDatabase(ctx context.Context, pool *pgxpool.Pool, s Seed) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO disputes (id, landlord, tenant, dispute_type, claim_amount) VALUES ($1, $2, $3, 'security-deposit', 1000)`,
		int64(s.DisputeID), s.Landlord, s.Tenant); err != nil {
		return fmt.Errorf("seed dispute %d: %w", s.DisputeID, err)
	}
	for _, m := range s.Mediators {
		if _, err := tx.Exec(ctx, `INSERT INTO mediator_assignments (dispute_id, mediator) VALUES ($1, $2)`, int64(s.DisputeID), m); err != nil {
			return fmt.Errorf("seed mediator %s: %w", m, err)
		}
	}
	for principal, amount := range s.Balances {
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (principal, amount) VALUES ($1, $2)
			ON CONFLICT (principal) DO UPDATE SET amount = balances.amount + EXCLUDED.amount
		`, principal, int64(amount)); err != nil {
			return fmt.Errorf("seed balance %s: %w", principal, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO seed_balances (principal, amount) VALUES ($1, $2)
			ON CONFLICT (principal) DO UPDATE SET amount = seed_balances.amount + EXCLUDED.amount
		`, principal, int64(amount)); err != nil {
			return fmt.Errorf("seed opening balance %s: %w", principal, err)
		}
	}
	return tx.Commit(ctx)
}
