package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/jackc/pgx/v5"

	"leaseflow/db"
	"leaseflow/dispute"
	"leaseflow/ledger"
	"leaseflow/outbox"
)

// Store defines the data access required by the service.
type Store interface {
	Lock(ctx context.Context, tx pgx.Tx, disputeID uint64) error
	Get(ctx context.Context, q db.Querier, disputeID uint64, forUpdate bool) (Resolution, bool, error)
	Save(ctx context.Context, tx pgx.Tx, disputeID uint64, res Resolution) error
	LoadParams(ctx context.Context, q db.Querier, forUpdate bool) (Params, error)
	SaveParams(ctx context.Context, tx pgx.Tx, p Params) error
}

// Transferrer executes value transfers inside the operation's transaction.
type Transferrer interface {
	Transfer(ctx context.Context, tx pgx.Tx, t ledger.Transfer) (ledger.Entry, error)
}

// EventWriter appends events in the operation's transaction.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic, partitionKey string, payload map[string]any) error
}

// Call identifies who invokes an operation and at which height.
type Call struct {
	Caller string
	Height uint64
}

// Service runs engine decisions atomically: lock, decide, transfer, store and
// emit in one transaction.
type Service struct {
	pool     db.Pool
	store    Store
	engine   *Engine
	ledger   Transferrer
	events   EventWriter
	disputes DisputeRegistry
	logger   *slog.Logger
}

// Dependencies bundles the collaborators of Service.
type Dependencies struct {
	Pool     db.Pool
	Store    Store
	Engine   *Engine
	Ledger   Transferrer
	Events   EventWriter
	Disputes DisputeRegistry
	Logger   *slog.Logger
}

func NewService(deps Dependencies) *Service {
	if deps.Store == nil {
		deps.Store = NewRepository()
	}
	if deps.Events == nil {
		deps.Events = outbox.NewWriter()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		pool:     deps.Pool,
		store:    deps.Store,
		engine:   deps.Engine,
		ledger:   deps.Ledger,
		events:   deps.Events,
		disputes: deps.Disputes,
		logger:   deps.Logger.With("module", "resolution"),
	}
}

type decideFunc func(ctx context.Context, cur *Resolution, env Env) (Decision, error)

type event struct {
	topic   string
	payload map[string]any
}

func (s *Service) ProposeResolution(ctx context.Context, call Call, disputeID uint64, outcome, rationale string) error {
	return s.mutate(ctx, "propose", call, disputeID,
		func(ctx context.Context, cur *Resolution, env Env) (Decision, error) {
			return s.engine.Propose(ctx, cur, env, disputeID, outcome, rationale)
		},
		func(d Decision) event {
			return event{outbox.TopicResolutionProposed, map[string]any{
				"mediator":    d.Resolution.Mediator,
				"outcome":     d.Resolution.Outcome,
				"resolved_at": d.Resolution.ResolvedAt,
			}}
		})
}

func (s *Service) PayResolutionFee(ctx context.Context, call Call, disputeID uint64) error {
	return s.mutate(ctx, "pay_fee", call, disputeID,
		func(ctx context.Context, cur *Resolution, env Env) (Decision, error) {
			return s.engine.PayFee(ctx, cur, env, disputeID)
		},
		func(d Decision) event {
			return event{outbox.TopicResolutionFeePaid, map[string]any{
				"payer":  call.Caller,
				"amount": transferTotal(d.Transfers),
			}}
		})
}

func (s *Service) FinalizeResolution(ctx context.Context, call Call, disputeID uint64) error {
	return s.mutate(ctx, "finalize", call, disputeID,
		func(ctx context.Context, cur *Resolution, env Env) (Decision, error) {
			return s.engine.Finalize(ctx, cur, env, disputeID)
		},
		func(d Decision) event {
			return event{outbox.TopicResolutionFinalized, map[string]any{
				"outcome":       d.Resolution.Outcome,
				"appeals_count": d.Resolution.AppealsCount,
			}}
		})
}

// AppealResolution records an appeal. The reason travels only in the event
// and the log line.
func (s *Service) AppealResolution(ctx context.Context, call Call, disputeID uint64, reason string) error {
	return s.mutate(ctx, "appeal", call, disputeID,
		func(ctx context.Context, cur *Resolution, env Env) (Decision, error) {
			return s.engine.Appeal(ctx, cur, env, disputeID)
		},
		func(d Decision) event {
			s.logger.InfoContext(ctx, "resolution appealed",
				"dispute_id", disputeID, "appellant", call.Caller,
				"appeals_count", d.Resolution.AppealsCount, "reason", reason)
			return event{outbox.TopicResolutionAppealed, map[string]any{
				"appellant":     call.Caller,
				"reason":        reason,
				"appeals_count": d.Resolution.AppealsCount,
				"amount":        transferTotal(d.Transfers),
			}}
		})
}

func (s *Service) SetAppealWindow(ctx context.Context, caller string, window uint64) error {
	return s.updateParams(ctx, "set_appeal_window", func(p Params) (Params, error) {
		return s.engine.SetAppealWindow(caller, p, window)
	})
}

func (s *Service) SetMaxAppeals(ctx context.Context, caller string, max uint64) error {
	return s.updateParams(ctx, "set_max_appeals", func(p Params) (Params, error) {
		return s.engine.SetMaxAppeals(caller, p, max)
	})
}

func (s *Service) SetResolutionFee(ctx context.Context, caller string, fee uint64) error {
	return s.updateParams(ctx, "set_resolution_fee", func(p Params) (Params, error) {
		return s.engine.SetResolutionFee(caller, p, fee)
	})
}

// GetResolution returns the stored record; ok is false when none exists.
func (s *Service) GetResolution(ctx context.Context, disputeID uint64) (Resolution, bool, error) {
	return s.store.Get(ctx, s.pool, disputeID, false)
}

// GetDisputeParties returns the registered parties; ok is false when the
// dispute is unknown.
func (s *Service) GetDisputeParties(ctx context.Context, disputeID uint64) (dispute.Parties, bool, error) {
	return s.disputes.Lookup(ctx, disputeID)
}

func (s *Service) Params(ctx context.Context) (Params, error) {
	return s.store.LoadParams(ctx, s.pool, false)
}

func (s *Service) GetAppealWindow(ctx context.Context) (uint64, error) {
	p, err := s.Params(ctx)
	return p.AppealWindow, err
}

func (s *Service) GetMaxAppeals(ctx context.Context) (uint64, error) {
	p, err := s.Params(ctx)
	return p.MaxAppeals, err
}

func (s *Service) GetResolutionFee(ctx context.Context) (uint64, error) {
	p, err := s.Params(ctx)
	return p.ResolutionFee, err
}

func (s *Service) mutate(ctx context.Context, op string, call Call, disputeID uint64, decide decideFunc, describe func(Decision) event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.store.Lock(ctx, tx, disputeID); err != nil {
		return err
	}

	var cur *Resolution
	existing, ok, err := s.store.Get(ctx, tx, disputeID, true)
	if err != nil {
		return err
	}
	if ok {
		cur = &existing
	}

	params, err := s.store.LoadParams(ctx, tx, false)
	if err != nil {
		return err
	}

	decision, err := decide(ctx, cur, Env{Caller: call.Caller, Height: call.Height, Params: params})
	if err != nil {
		if code, isCode := CodeOf(err); isCode {
			s.logger.WarnContext(ctx, "resolution operation rejected",
				"operation", op, "dispute_id", disputeID, "caller", call.Caller,
				"height", call.Height, "code", uint32(code), "error_code", code.Name())
		}
		return err
	}

	for _, t := range decision.Transfers {
		if _, err := s.ledger.Transfer(ctx, tx, t); err != nil {
			return fmt.Errorf("resolution: %s transfer: %w", op, err)
		}
	}

	if err := s.store.Save(ctx, tx, disputeID, decision.Resolution); err != nil {
		return err
	}

	ev := describe(decision)
	ev.payload["dispute_id"] = disputeID
	ev.payload["height"] = call.Height
	if err := s.events.Enqueue(ctx, tx, ev.topic, strconv.FormatUint(disputeID, 10), ev.payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("resolution: commit %s: %w", op, err)
	}
	return nil
}

func (s *Service) updateParams(ctx context.Context, op string, apply func(Params) (Params, error)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("resolution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	cur, err := s.store.LoadParams(ctx, tx, true)
	if err != nil {
		return err
	}
	next, err := apply(cur)
	if err != nil {
		return err
	}
	if next.AppealWindow > math.MaxInt64 || next.MaxAppeals > math.MaxInt64 || next.ResolutionFee > math.MaxInt64 {
		return fmt.Errorf("%s: %w", op, ErrValueOutOfRange)
	}
	if err := s.store.SaveParams(ctx, tx, next); err != nil {
		return err
	}
	if err := s.events.Enqueue(ctx, tx, outbox.TopicParamsUpdated, "params", map[string]any{
		"operation":      op,
		"appeal_window":  next.AppealWindow,
		"max_appeals":    next.MaxAppeals,
		"resolution_fee": next.ResolutionFee,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("resolution: commit %s: %w", op, err)
	}
	return nil
}

func transferTotal(ts []ledger.Transfer) uint64 {
	var total uint64
	for _, t := range ts {
		total += t.Amount
	}
	return total
}
