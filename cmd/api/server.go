package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"leaseflow/auth"
	"leaseflow/dispute"
	"leaseflow/ledger"
	"leaseflow/resolution"
)

type resolutionService interface {
	ProposeResolution(ctx context.Context, call resolution.Call, disputeID uint64, outcome, rationale string) error
	PayResolutionFee(ctx context.Context, call resolution.Call, disputeID uint64) error
	FinalizeResolution(ctx context.Context, call resolution.Call, disputeID uint64) error
	AppealResolution(ctx context.Context, call resolution.Call, disputeID uint64, reason string) error
	SetAppealWindow(ctx context.Context, caller string, window uint64) error
	SetMaxAppeals(ctx context.Context, caller string, max uint64) error
	SetResolutionFee(ctx context.Context, caller string, fee uint64) error
	GetResolution(ctx context.Context, disputeID uint64) (resolution.Resolution, bool, error)
	GetDisputeParties(ctx context.Context, disputeID uint64) (dispute.Parties, bool, error)
	Params(ctx context.Context) (resolution.Params, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Principal, error)
	Provision(ctx context.Context, req auth.RegisterRequest) (*auth.Principal, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

type heightSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

type mediatorLister interface {
	ListByDispute(ctx context.Context, disputeID uint64) ([]string, error)
}

// Server exposes the resolution workflow over HTTP.
type Server struct {
	resolutionService resolutionService
	authService       authService
	heights           heightSource
	mediators         mediatorLister
}

func NewServer(res resolutionService, authSvc authService, heights heightSource, mediators mediatorLister) *Server {
	return &Server{resolutionService: res, authService: authSvc, heights: heights, mediators: mediators}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/disputes/{id}/resolution", s.handleGetResolution)
		r.Get("/disputes/{id}/parties", s.handleGetParties)
		r.Get("/disputes/{id}/mediators", s.handleListMediators)
		r.Get("/params", s.handleGetParams)
		r.Get("/params/{name}", s.handleGetParam)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/disputes/{id}/resolution", s.handlePropose)
			r.Post("/disputes/{id}/resolution/fee", s.handlePayFee)
			r.Post("/disputes/{id}/resolution/finalize", s.handleFinalize)
			r.Post("/disputes/{id}/resolution/appeals", s.handleAppeal)
			r.Put("/params/{name}", s.handleSetParam)
			r.Post("/auth/principals", s.handleProvision)
		})
	})
	return r
}

type valueResponse struct {
	OK    bool `json:"ok"`
	Value any  `json:"value"`
}

type failureResponse struct {
	OK    bool   `json:"ok"`
	Code  uint32 `json:"code,omitempty"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeValue(w http.ResponseWriter, status int, value any) {
	writeJSON(w, status, valueResponse{OK: true, Value: value})
}

func writeFailure(w http.ResponseWriter, status int, code uint32, kind string) {
	writeJSON(w, status, failureResponse{Code: code, Error: kind})
}

// writeError maps state machine codes and package sentinels to responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if code, ok := resolution.CodeOf(err); ok {
		writeFailure(w, statusForCode(code), uint32(code), code.Name())
		return
	}

	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status, kind = http.StatusUnprocessableEntity, "insufficient-funds"
	case errors.Is(err, ledger.ErrSelfTransfer):
		status, kind = http.StatusUnprocessableEntity, "self-transfer"
	case errors.Is(err, ledger.ErrMissingPrincipal), errors.Is(err, ledger.ErrInvalidAmount):
		status, kind = http.StatusUnprocessableEntity, "invalid-transfer"
	case errors.Is(err, resolution.ErrValueOutOfRange):
		status, kind = http.StatusUnprocessableEntity, "value-out-of-range"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, kind = http.StatusUnauthorized, "invalid-credentials"
	case errors.Is(err, auth.ErrDuplicatePrincipal):
		status, kind = http.StatusConflict, "principal-exists"
	case errors.Is(err, auth.ErrReservedIdentity):
		status, kind = http.StatusForbidden, "identity-reserved"
	case errors.Is(err, auth.ErrRoleNotAllowed):
		status, kind = http.StatusForbidden, "role-not-allowed"
	case errors.Is(err, auth.ErrWeakPassword):
		status, kind = http.StatusBadRequest, "weak-password"
	}

	fields := []any{"operation", op, "status_code", status, "request_id", requestIDFromContext(r.Context()), "error", err.Error()}
	if status >= 500 {
		httpLogger().ErrorContext(r.Context(), "http operation failed", fields...)
	} else {
		httpLogger().WarnContext(r.Context(), "http operation failed", fields...)
	}
	writeFailure(w, status, 0, kind)
}

func statusForCode(code resolution.Code) int {
	switch code {
	case resolution.CodeNotAuthorized:
		return http.StatusForbidden
	case resolution.CodeInvalidDispute, resolution.CodeNoResolution:
		return http.StatusNotFound
	case resolution.CodeInvalidMediator, resolution.CodeInvalidOutcome, resolution.CodeInvalidRationale:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}
