package test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"leaseflow/ledger"
	"leaseflow/outbox"
	"leaseflow/resolution"
	"leaseflow/test/infra"
)

func openLifecycleHarness(t *testing.T) (*infra.Harness, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("database test skipped in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	dsn := os.Getenv("DATABASE_URL")
	if infra.ExternalDSN(dsn) == "" && !dockerAvailable(ctx) {
		t.Skip("DATABASE_URL is empty and docker is unavailable")
	}
	h, err := infra.NewHarness(ctx, dsn)
	if err != nil {
		t.Fatalf("open harness: %v", err)
	}
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h, ctx
}

func TestLifecycle_Postgres(t *testing.T) {
	h, ctx := openLifecycleHarness(t)
	pool := h.Pool()
	if err := h.Seed(ctx, infra.Seed{
		DisputeID: 1,
		Landlord:  stressLandlord,
		Tenant:    stressTenant,
		Mediators: []string{stressMediator},
		Balances:  map[string]uint64{stressMediator: 1000, stressTenant: 1000},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newService(pool)
	balances := ledger.NewRepository(pool)
	at := func(caller string, height uint64) resolution.Call {
		return resolution.Call{Caller: caller, Height: height}
	}

	if err := svc.ProposeResolution(ctx, at(stressOutsider, 0), 1, "70% refund", "Evidence shows damage"); !errors.Is(err, resolution.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized for unassigned mediator, got %v", err)
	}
	// Assignments reference disputes, so an unknown dispute fails the mediator check first.
	if err := svc.ProposeResolution(ctx, at(stressMediator, 0), 2, "70% refund", "Evidence shows damage"); !errors.Is(err, resolution.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized for unknown dispute, got %v", err)
	}
	if err := svc.AppealResolution(ctx, at(stressTenant, 0), 1, "early"); !errors.Is(err, resolution.ErrInvalidDispute) {
		t.Fatalf("expected InvalidDispute before any proposal, got %v", err)
	}
	if err := svc.ProposeResolution(ctx, at(stressMediator, 0), 1, "70% refund", "Evidence shows damage"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := svc.FinalizeResolution(ctx, at(stressMediator, 1), 1); !errors.Is(err, resolution.ErrAlreadyResolved) {
		t.Fatalf("expected AlreadyResolved before fee, got %v", err)
	}
	if err := svc.PayResolutionFee(ctx, at(stressMediator, 1), 1); err != nil {
		t.Fatalf("pay fee: %v", err)
	}
	if err := svc.PayResolutionFee(ctx, at(stressMediator, 2), 1); !errors.Is(err, resolution.ErrAlreadyResolved) {
		t.Fatalf("expected AlreadyResolved on second fee, got %v", err)
	}
	if err := svc.AppealResolution(ctx, at(stressTenant, 43200), 1, "Disagree with outcome"); err != nil {
		t.Fatalf("appeal at boundary: %v", err)
	}
	if err := svc.AppealResolution(ctx, at(stressLandlord, 43200), 1, "Me too"); !errors.Is(err, resolution.ErrAppealNotAllowed) {
		t.Fatalf("expected AppealNotAllowed, got %v", err)
	}
	if err := svc.FinalizeResolution(ctx, at(stressMediator, 43199), 1); !errors.Is(err, resolution.ErrFinalizationEarly) {
		t.Fatalf("expected FinalizationEarly, got %v", err)
	}
	if err := svc.FinalizeResolution(ctx, at(stressMediator, 43201), 1); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := svc.ProposeResolution(ctx, at(stressMediator, 43202), 1, "overwrite", "attempt"); !errors.Is(err, resolution.ErrAlreadyResolved) {
		t.Fatalf("expected final record to reject propose, got %v", err)
	}

	res, ok, err := svc.GetResolution(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("get resolution: ok=%v err=%v", ok, err)
	}
	want := resolution.Resolution{
		Mediator: stressMediator, Outcome: "70% refund", Rationale: "Evidence shows damage",
		ResolvedAt: 0, Appealed: true, AppealsCount: 1, Final: true, FeePaid: true,
	}
	if res != want {
		t.Fatalf("expected %+v got %+v", want, res)
	}

	for principal, amount := range map[string]uint64{stressMediator: 500, stressTenant: 500, stressRecipient: 1000} {
		got, err := balances.Balance(ctx, principal)
		if err != nil {
			t.Fatalf("balance %s: %v", principal, err)
		}
		if got != amount {
			t.Fatalf("expected %s balance %d, got %d", principal, amount, got)
		}
	}

	var topics []string
	rows, err := pool.Query(ctx, `SELECT topic FROM outbox WHERE partition_key = '1' ORDER BY seq`)
	if err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			t.Fatalf("scan: %v", err)
		}
		topics = append(topics, topic)
	}
	rows.Close()
	wantTopics := []string{outbox.TopicResolutionProposed, outbox.TopicResolutionFeePaid, outbox.TopicResolutionAppealed, outbox.TopicResolutionFinalized}
	if len(topics) != len(wantTopics) {
		t.Fatalf("expected topics %v got %v", wantTopics, topics)
	}
	for i := range wantTopics {
		if topics[i] != wantTopics[i] {
			t.Fatalf("expected topics %v got %v", wantTopics, topics)
		}
	}
}

func TestLifecycle_InsufficientFundsRollsBack(t *testing.T) {
	h, ctx := openLifecycleHarness(t)
	if err := h.Seed(ctx, infra.Seed{
		DisputeID: 1,
		Landlord:  stressLandlord,
		Tenant:    stressTenant,
		Mediators: []string{stressMediator},
		Balances:  map[string]uint64{stressMediator: 499},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newService(h.Pool())

	if err := svc.ProposeResolution(ctx, resolution.Call{Caller: stressMediator}, 1, "split", "both at fault"); err != nil {
		t.Fatalf("propose: %v", err)
	}
	err := svc.PayResolutionFee(ctx, resolution.Call{Caller: stressMediator, Height: 1}, 1)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	res, _, err := svc.GetResolution(ctx, 1)
	if err != nil {
		t.Fatalf("get resolution: %v", err)
	}
	if res.FeePaid {
		t.Fatalf("fee flag must stay false after a failed transfer")
	}

	var events int
	if err := h.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = $1`, outbox.TopicResolutionFeePaid).Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 0 {
		t.Fatalf("expected no fee event, got %d", events)
	}
}

func TestLifecycle_AdminParams(t *testing.T) {
	h, ctx := openLifecycleHarness(t)
	svc := newService(h.Pool())

	if err := svc.SetMaxAppeals(ctx, stressMediator, 3); !errors.Is(err, resolution.ErrNotAuthorized) {
		t.Fatalf("expected NotAuthorized, got %v", err)
	}
	if err := svc.SetMaxAppeals(ctx, stressAdmin, 3); err != nil {
		t.Fatalf("set max appeals: %v", err)
	}
	if err := svc.SetResolutionFee(ctx, stressAdmin, 0); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	p, err := svc.Params(ctx)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p != (resolution.Params{AppealWindow: 43200, MaxAppeals: 3, ResolutionFee: 0}) {
		t.Fatalf("unexpected params %+v", p)
	}
	if err := h.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p, _ := svc.Params(ctx); p != resolution.DefaultParams() {
		t.Fatalf("expected defaults after reset, got %+v", p)
	}
}
