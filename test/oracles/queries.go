package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariants checked against a live database. Each query
// returns rows only when the invariant is broken. Drafts are counted from
// resolution.proposed events, ordered by outbox seq.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_appeals_within_max",
			SQL: `SELECT r.dispute_id, r.appeals_count, p.max_appeals
                  FROM resolutions r CROSS JOIN resolution_params p
                  WHERE r.appeals_count > p.max_appeals`,
		},
		{
			Name: "O2_fee_once_per_draft",
			SQL: `WITH ev AS (
                      SELECT partition_key, topic,
                             COUNT(*) FILTER (WHERE topic = 'resolution.proposed')
                                 OVER (PARTITION BY partition_key ORDER BY seq) AS draft
                      FROM outbox
                      WHERE topic IN ('resolution.proposed', 'resolution.fee_paid'))
                  SELECT partition_key, draft, COUNT(*)
                  FROM ev WHERE topic = 'resolution.fee_paid'
                  GROUP BY partition_key, draft HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_fee_transfer_matches_event",
			SQL: `SELECT d.id
                  FROM disputes d
                  WHERE (SELECT COUNT(*) FROM transfers t WHERE t.memo = 'resolution-fee:' || d.id)
                     <> (SELECT COUNT(*) FROM outbox o WHERE o.topic = 'resolution.fee_paid' AND o.partition_key = d.id::text)
                     OR (SELECT COUNT(*) FROM transfers t WHERE t.memo = 'appeal-fee:' || d.id)
                     <> (SELECT COUNT(*) FROM outbox o WHERE o.topic = 'resolution.appealed' AND o.partition_key = d.id::text)`,
		},
		{
			Name: "O4_final_immutable",
			SQL: `SELECT o.partition_key, o.topic, o.seq
                  FROM outbox o
                  JOIN outbox f ON f.partition_key = o.partition_key AND f.topic = 'resolution.finalized'
                  WHERE o.topic LIKE 'resolution.%' AND o.seq > f.seq`,
		},
		{
			Name: "O5_final_requires_fee",
			SQL:  `SELECT dispute_id FROM resolutions WHERE final AND NOT fee_paid`,
		},
		{
			Name: "O6_balance_conservation",
			SQL: `SELECT b.principal, b.amount
                  FROM balances b
                  LEFT JOIN seed_balances s ON s.principal = b.principal
                  WHERE b.amount <> COALESCE(s.amount, 0)
                      + COALESCE((SELECT SUM(amount) FROM transfers WHERE recipient = b.principal), 0)
                      - COALESCE((SELECT SUM(amount) FROM transfers WHERE sender = b.principal), 0)`,
		},
		{
			Name: "O7_outbox_drains",
			SQL: `SELECT id::text FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
