package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leaseflow/ledger"
	"leaseflow/outbox"
	"leaseflow/resolution"
)

// Stats counts outcomes across all actors.
type Stats struct {
	Accepted atomic.Int64
	Rejected atomic.Int64
	Failed   atomic.Int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("accepted=%d rejected=%d failed=%d", s.Accepted.Load(), s.Rejected.Load(), s.Failed.Load())
}

// Env is what every actor needs to drive the service.
type Env struct {
	Service  *resolution.Service
	Heights  *ledger.Repository
	Disputes []uint64
	Stats    *Stats
}

func (e Env) pick() uint64 { return e.Disputes[rand.Intn(len(e.Disputes))] }

// loop runs step until stop or ctx ends, pausing between iterations.
// Rejections and transient database failures are counted, not returned.
func loop(ctx context.Context, stop <-chan struct{}, env Env, pause func() time.Duration, step func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		err := step()
		switch {
		case err == nil:
			env.Stats.Accepted.Add(1)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		default:
			if _, ok := resolution.CodeOf(err); ok || errors.Is(err, ledger.ErrInsufficientFunds) {
				env.Stats.Rejected.Add(1)
			} else {
				env.Stats.Failed.Add(1)
			}
		}
		time.Sleep(pause())
	}
}

func jitter(base, spread int) func() time.Duration {
	return func() time.Duration { return time.Duration(base+rand.Intn(spread)) * time.Millisecond }
}

func (e Env) call(ctx context.Context, caller string) (resolution.Call, error) {
	h, err := e.Heights.CurrentHeight(ctx)
	if err != nil {
		return resolution.Call{}, err
	}
	return resolution.Call{Caller: caller, Height: h}, nil
}

// Proposer keeps proposing, occasionally overwriting its own drafts.
func Proposer(ctx context.Context, env Env, mediator string, stop <-chan struct{}) error {
	return loop(ctx, stop, env, jitter(80, 120), func() error {
		call, err := env.call(ctx, mediator)
		if err != nil {
			return err
		}
		outcome := fmt.Sprintf("%d%% refund", rand.Intn(101))
		return env.Service.ProposeResolution(ctx, call, env.pick(), outcome, "Inspection report and photos")
	})
}

// FeePayer races other payers on the same drafts.
func FeePayer(ctx context.Context, env Env, mediator string, stop <-chan struct{}) error {
	return loop(ctx, stop, env, jitter(10, 30), func() error {
		call, err := env.call(ctx, mediator)
		if err != nil {
			return err
		}
		return env.Service.PayResolutionFee(ctx, call, env.pick())
	})
}

// Appealer lodges appeals as a landlord or tenant.
func Appealer(ctx context.Context, env Env, party string, stop <-chan struct{}) error {
	return loop(ctx, stop, env, jitter(10, 30), func() error {
		call, err := env.call(ctx, party)
		if err != nil {
			return err
		}
		return env.Service.AppealResolution(ctx, call, env.pick(), "Disagree with outcome")
	})
}

// Finalizer tries to close disputes as soon as windows allow.
func Finalizer(ctx context.Context, env Env, caller string, stop <-chan struct{}) error {
	return loop(ctx, stop, env, jitter(20, 40), func() error {
		call, err := env.call(ctx, caller)
		if err != nil {
			return err
		}
		return env.Service.FinalizeResolution(ctx, call, env.pick())
	})
}

// ParamsAdmin moves the appeal window and the fee while operations run.
// maxAppeals is left alone so the appeals oracle can compare against it.
func ParamsAdmin(ctx context.Context, env Env, admin string, stop <-chan struct{}) error {
	return loop(ctx, stop, env, jitter(300, 300), func() error {
		if rand.Intn(2) == 0 {
			return env.Service.SetAppealWindow(ctx, admin, uint64(5+rand.Intn(30)))
		}
		return env.Service.SetResolutionFee(ctx, admin, uint64(1+rand.Intn(50)))
	})
}

// HeightAdvancer moves the chain head forward.
func HeightAdvancer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = pool.Exec(ctx, `UPDATE chain_head SET height = height + $1 WHERE id = 1`, 1+rand.Intn(3))
		time.Sleep(time.Duration(40+rand.Intn(40)) * time.Millisecond)
	}
}

// flakyPublisher drops one message in ten.
type flakyPublisher struct{}

func (flakyPublisher) Publish(context.Context, outbox.Message) error {
	if rand.Intn(10) == 0 {
		return errors.New("simulated broker failure")
	}
	return nil
}

// OutboxWorker drains the outbox through a relay whose publisher fails at
// random.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	relay := outbox.NewRelay(pool, flakyPublisher{}, outbox.RelayConfig{BatchSize: 20, MaxAttempts: 10})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = relay.Flush(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
