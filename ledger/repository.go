package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"leaseflow/db"
)

var (
	// ErrInvalidAmount rejects zero-value transfers and amounts above the
	// BIGINT balance range.
	ErrInvalidAmount = errors.New("ledger: amount must be positive and fit int64")
	// ErrSelfTransfer rejects transfers where sender and recipient match.
	ErrSelfTransfer = errors.New("ledger: sender and recipient are the same")
	// ErrInsufficientFunds signals the sender balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrMissingPrincipal signals an empty sender or recipient.
	ErrMissingPrincipal = errors.New("ledger: sender and recipient required")
)

// Repository executes value transfers against the balances table.
type Repository struct {
	q           db.Querier
	idGenerator func() string
	now         func() time.Time
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{
		q:           q,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

// Transfer debits the sender and credits the recipient inside tx. The caller
// owns commit and rollback; a failed transfer leaves tx unusable.
func (r *Repository) Transfer(ctx context.Context, tx pgx.Tx, t Transfer) (Entry, error) {
	if t.Amount == 0 || t.Amount > math.MaxInt64 {
		return Entry{}, ErrInvalidAmount
	}
	if t.Sender == "" || t.Recipient == "" {
		return Entry{}, ErrMissingPrincipal
	}
	if t.Sender == t.Recipient {
		return Entry{}, ErrSelfTransfer
	}

	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET amount = amount - $1, updated_at = NOW()
		WHERE principal = $2 AND amount >= $1
	`, int64(t.Amount), t.Sender)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: debit sender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Entry{}, ErrInsufficientFunds
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (principal, amount)
		VALUES ($1, $2)
		ON CONFLICT (principal) DO UPDATE
		SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()
	`, t.Recipient, int64(t.Amount)); err != nil {
		return Entry{}, fmt.Errorf("ledger: credit recipient: %w", err)
	}

	entry := Entry{
		ID:        r.idGenerator(),
		Amount:    t.Amount,
		Sender:    t.Sender,
		Recipient: t.Recipient,
		Memo:      t.Memo,
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO transfers (id, amount, sender, recipient, memo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, entry.ID, int64(entry.Amount), entry.Sender, entry.Recipient, entry.Memo).Scan(&entry.CreatedAt); err != nil {
		return Entry{}, fmt.Errorf("ledger: journal transfer: %w", err)
	}

	return entry, nil
}

// Balance returns the balance of principal, zero when it has never held funds.
func (r *Repository) Balance(ctx context.Context, principal string) (uint64, error) {
	var amount int64
	err := r.q.QueryRow(ctx, `SELECT amount FROM balances WHERE principal = $1`, principal).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return uint64(amount), nil
}

// CurrentHeight reads the chain head maintained by the environment.
func (r *Repository) CurrentHeight(ctx context.Context) (uint64, error) {
	var h int64
	if err := r.q.QueryRow(ctx, `SELECT height FROM chain_head WHERE id = 1`).Scan(&h); err != nil {
		return 0, fmt.Errorf("ledger: current height: %w", err)
	}
	return uint64(h), nil
}
