package resolution

import (
	"context"
	"fmt"

	"leaseflow/dispute"
	"leaseflow/ledger"
)

// DisputeRegistry resolves dispute ids to their registered parties.
type DisputeRegistry interface {
	Lookup(ctx context.Context, disputeID uint64) (dispute.Parties, bool, error)
	IsParty(ctx context.Context, disputeID uint64, identity string) (bool, error)
}

// MediatorRegistry answers whether an identity may mediate a dispute.
type MediatorRegistry interface {
	IsAuthorized(ctx context.Context, disputeID uint64, identity string) (bool, error)
}

// EngineConfig holds the fixed identities of the deployment.
type EngineConfig struct {
	Admin        string
	FeeRecipient string
}

// Engine decides resolution transitions. It never writes: it reads the
// registries and returns the next record plus the transfers to execute.
// Check order inside each operation determines the observable code.
type Engine struct {
	disputes     DisputeRegistry
	mediators    MediatorRegistry
	admin        string
	feeRecipient string
}

func NewEngine(disputes DisputeRegistry, mediators MediatorRegistry, cfg EngineConfig) *Engine {
	return &Engine{
		disputes:     disputes,
		mediators:    mediators,
		admin:        cfg.Admin,
		feeRecipient: cfg.FeeRecipient,
	}
}

// Propose creates or overwrites the draft for disputeID. cur is nil when no
// resolution exists.
func (e *Engine) Propose(ctx context.Context, cur *Resolution, env Env, disputeID uint64, outcome, rationale string) (Decision, error) {
	ok, err := e.mediators.IsAuthorized(ctx, disputeID, env.Caller)
	if err != nil {
		return Decision{}, fmt.Errorf("resolution: check mediator: %w", err)
	}
	if !ok {
		return Decision{}, ErrNotAuthorized
	}
	if cur != nil && cur.Final {
		return Decision{}, ErrAlreadyResolved
	}
	if !validText(outcome, MaxOutcomeLen) {
		return Decision{}, ErrInvalidOutcome
	}
	if !validText(rationale, MaxRationaleLen) {
		return Decision{}, ErrInvalidRationale
	}
	_, exists, err := e.disputes.Lookup(ctx, disputeID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolution: lookup dispute: %w", err)
	}
	if !exists {
		return Decision{}, ErrInvalidDispute
	}

	return Decision{Resolution: Resolution{
		Mediator:   env.Caller,
		Outcome:    outcome,
		Rationale:  rationale,
		ResolvedAt: env.Height,
	}}, nil
}

// PayFee charges the resolution fee to the calling mediator exactly once.
func (e *Engine) PayFee(ctx context.Context, cur *Resolution, env Env, disputeID uint64) (Decision, error) {
	if cur == nil {
		return Decision{}, ErrNoResolution
	}
	ok, err := e.mediators.IsAuthorized(ctx, disputeID, env.Caller)
	if err != nil {
		return Decision{}, fmt.Errorf("resolution: check mediator: %w", err)
	}
	if !ok {
		return Decision{}, ErrNotAuthorized
	}
	if cur.FeePaid {
		return Decision{}, ErrAlreadyResolved
	}

	next := *cur
	next.FeePaid = true
	return Decision{
		Resolution: next,
		Transfers:  e.feeTransfer(env, "resolution-fee", disputeID),
	}, nil
}

// Finalize makes the resolution terminal once the fee is paid and the appeal
// window has elapsed.
func (e *Engine) Finalize(_ context.Context, cur *Resolution, env Env, _ uint64) (Decision, error) {
	if cur == nil {
		return Decision{}, ErrInvalidDispute
	}
	if !cur.FeePaid {
		return Decision{}, ErrAlreadyResolved
	}
	if env.Height < windowEnd(cur.ResolvedAt, env.Params.AppealWindow) {
		return Decision{}, ErrFinalizationEarly
	}
	if cur.Final {
		return Decision{}, ErrAlreadyResolved
	}

	next := *cur
	next.Final = true
	return Decision{Resolution: next}, nil
}

// Appeal records one appeal by the landlord or tenant and charges them the
// resolution fee. The reason is not part of the record.
func (e *Engine) Appeal(ctx context.Context, cur *Resolution, env Env, disputeID uint64) (Decision, error) {
	if cur == nil {
		return Decision{}, ErrInvalidDispute
	}
	party, err := e.disputes.IsParty(ctx, disputeID, env.Caller)
	if err != nil {
		return Decision{}, fmt.Errorf("resolution: check party: %w", err)
	}
	if !party {
		return Decision{}, ErrNotAuthorized
	}
	if cur.Final {
		return Decision{}, ErrAlreadyResolved
	}
	if cur.AppealsCount >= env.Params.MaxAppeals {
		return Decision{}, ErrAppealNotAllowed
	}
	if env.Height > windowEnd(cur.ResolvedAt, env.Params.AppealWindow) {
		return Decision{}, ErrAppealExpired
	}

	next := *cur
	next.Appealed = true
	next.AppealsCount++
	return Decision{
		Resolution: next,
		Transfers:  e.feeTransfer(env, "appeal-fee", disputeID),
	}, nil
}

func (e *Engine) SetAppealWindow(caller string, p Params, window uint64) (Params, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Params{}, err
	}
	p.AppealWindow = window
	return p, nil
}

func (e *Engine) SetMaxAppeals(caller string, p Params, max uint64) (Params, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Params{}, err
	}
	p.MaxAppeals = max
	return p, nil
}

func (e *Engine) SetResolutionFee(caller string, p Params, fee uint64) (Params, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Params{}, err
	}
	p.ResolutionFee = fee
	return p, nil
}

// FeeRecipient is the account collecting resolution and appeal fees.
func (e *Engine) FeeRecipient() string { return e.feeRecipient }

func (e *Engine) requireAdmin(caller string) error {
	if caller == "" || caller != e.admin {
		return ErrNotAuthorized
	}
	return nil
}

// feeTransfer is empty for a zero fee; the ledger rejects zero-value transfers.
func (e *Engine) feeTransfer(env Env, kind string, disputeID uint64) []ledger.Transfer {
	if env.Params.ResolutionFee == 0 {
		return nil
	}
	return []ledger.Transfer{{
		Amount:    env.Params.ResolutionFee,
		Sender:    env.Caller,
		Recipient: e.feeRecipient,
		Memo:      fmt.Sprintf("%s:%d", kind, disputeID),
	}}
}
