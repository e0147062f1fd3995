package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, fakeReservations{}, "test-secret")

	req := RegisterRequest{ID: "ST1TENANT", Password: "supersafe"}

	ctx := context.Background()
	p, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}
	if p.ID != req.ID {
		t.Fatalf("expected id %q got %q", req.ID, p.ID)
	}
	if p.Role != RoleParty {
		t.Fatalf("register: expected default role %s got %s", RoleParty, p.Role)
	}
	if p.PasswordHash == req.Password {
		t.Fatal("register: password stored in clear")
	}

	resp, err := svc.Login(ctx, LoginRequest{ID: req.ID, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}

	caller, role, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if caller != "ST1TENANT" {
		t.Fatalf("verify token: expected caller ST1TENANT got %q", caller)
	}
	if role != RoleParty {
		t.Fatalf("verify token: expected role %s got %s", RoleParty, role)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{}, "test-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{ID: "ST1A", Password: "short"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.Register(ctx, RegisterRequest{ID: "  ", Password: "strongpassword"}); err == nil {
		t.Fatal("expected validation error for missing id")
	}
	if _, err := svc.Register(ctx, RegisterRequest{ID: "ST1A", Password: "strongpassword", Role: "landlord"}); err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestService_DuplicatePrincipal(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{}, "test-secret")
	req := RegisterRequest{ID: "ST1TENANT", Password: "strongpassword"}

	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicatePrincipal) {
		t.Fatalf("expected ErrDuplicatePrincipal, got %v", err)
	}
	if _, err := svc.Provision(context.Background(), req); !errors.Is(err, ErrDuplicatePrincipal) {
		t.Fatalf("expected ErrDuplicatePrincipal from provision, got %v", err)
	}
}

func TestService_RegisterRefusesReservedIdentity(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, fakeReservations{"ST1ADMIN": true, "ST1MEDIATOR": true}, "test-secret")
	ctx := context.Background()

	for _, id := range []string{"ST1ADMIN", " ST1MEDIATOR "} {
		if _, err := svc.Register(ctx, RegisterRequest{ID: id, Password: "strongpassword"}); !errors.Is(err, ErrReservedIdentity) {
			t.Fatalf("%q: expected ErrReservedIdentity, got %v", id, err)
		}
	}
	if len(repo.principals) != 0 {
		t.Fatalf("reserved registration stored principals: %v", repo.principals)
	}
	if _, err := svc.Login(ctx, LoginRequest{ID: "ST1ADMIN", Password: "strongpassword"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected no admin login after refused registration, got %v", err)
	}
}

func TestService_RegisterRefusesElevatedRole(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{}, "test-secret")

	for _, role := range []Role{RoleAdmin, RoleMediator} {
		_, err := svc.Register(context.Background(), RegisterRequest{ID: "ST2NEW", Password: "strongpassword", Role: role})
		if !errors.Is(err, ErrRoleNotAllowed) {
			t.Fatalf("%s: expected ErrRoleNotAllowed, got %v", role, err)
		}
	}
}

func TestService_RegisterReservationError(t *testing.T) {
	svc := NewService(newFakeRepository(), failingReservations{}, "test-secret")
	_, err := svc.Register(context.Background(), RegisterRequest{ID: "ST2NEW", Password: "strongpassword"})
	if err == nil || errors.Is(err, ErrReservedIdentity) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestService_ProvisionReservedIdentity(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{"ST1ADMIN": true}, "test-secret")
	ctx := context.Background()

	p, err := svc.Provision(ctx, RegisterRequest{ID: "ST1ADMIN", Password: "strongpassword", Role: RoleAdmin})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if p.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %s", p.Role)
	}
	res, err := svc.Login(ctx, LoginRequest{ID: "ST1ADMIN", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	caller, role, err := svc.VerifyToken(res.Token)
	if err != nil || caller != "ST1ADMIN" || role != RoleAdmin {
		t.Fatalf("unexpected token identity %q %s %v", caller, role, err)
	}
}

func TestReservations_FixedAndLookup(t *testing.T) {
	q := &boolQuerier{answer: true}
	r := NewReservations(q, "ST1ADMIN", "", "ST1FEEHANDLER")
	ctx := context.Background()

	reserved, err := r.IsReserved(ctx, "ST1FEEHANDLER")
	if err != nil || !reserved || q.calls != 0 {
		t.Fatalf("fixed id: reserved=%v err=%v calls=%d", reserved, err, q.calls)
	}

	reserved, err = r.IsReserved(ctx, "ST1LANDLORD")
	if err != nil || !reserved || q.calls != 1 {
		t.Fatalf("dispute party: reserved=%v err=%v calls=%d", reserved, err, q.calls)
	}
	if q.arg != "ST1LANDLORD" {
		t.Fatalf("lookup bound %v", q.arg)
	}

	q.answer = false
	if reserved, _ := r.IsReserved(ctx, ""); reserved {
		t.Fatal("empty fixed entry must not reserve the empty id")
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{}, "test-secret")
	ctx := context.Background()

	if _, err := svc.Login(ctx, LoginRequest{ID: "ST2UNKNOWN", Password: "irrelevant"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if _, err := svc.Register(ctx, RegisterRequest{ID: "ST1LANDLORD", Password: "strongpassword"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{ID: "ST1LANDLORD", Password: "wrongpassword"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_VerifyTokenRejects(t *testing.T) {
	svc := NewService(newFakeRepository(), fakeReservations{}, "test-secret")
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }

	token, err := svc.generateToken("ST1ADMIN", RoleAdmin)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, _, err := svc.VerifyToken(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	other := NewService(newFakeRepository(), fakeReservations{}, "other-secret")
	other.now = svc.now
	if _, _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	svc.now = func() time.Time { return issued.Add(tokenTTL + time.Minute) }
	if _, _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	svc.now = func() time.Time { return issued }
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": string(RoleParty),
		"exp":  issued.Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := svc.VerifyToken(noSub); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without subject, got %v", err)
	}
}

type fakeRepository struct {
	principals map[string]Principal
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{principals: make(map[string]Principal)}
}

func (f *fakeRepository) CreatePrincipal(_ context.Context, params CreatePrincipalParams) (Principal, error) {
	if _, exists := f.principals[params.ID]; exists {
		return Principal{}, ErrDuplicatePrincipal
	}
	p := Principal{
		ID:           params.ID,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.principals[p.ID] = p
	return p, nil
}

func (f *fakeRepository) GetPrincipal(_ context.Context, id string) (Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p, nil
}

type fakeReservations map[string]bool

func (f fakeReservations) IsReserved(_ context.Context, id string) (bool, error) {
	return f[id], nil
}

type failingReservations struct{}

func (failingReservations) IsReserved(context.Context, string) (bool, error) {
	return false, errors.New("connection reset")
}

type boolQuerier struct {
	answer bool
	calls  int
	arg    any
}

func (q *boolQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not supported")
}

func (q *boolQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (q *boolQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.calls++
	if len(args) > 0 {
		q.arg = args[0]
	}
	return boolRow{v: q.answer}
}

type boolRow struct{ v bool }

func (r boolRow) Scan(dest ...any) error {
	*dest[0].(*bool) = r.v
	return nil
}
