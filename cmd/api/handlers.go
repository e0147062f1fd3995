package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"leaseflow/auth"
	"leaseflow/dispute"
	"leaseflow/resolution"
)

type resolutionResponse struct {
	Mediator     string `json:"mediator"`
	Outcome      string `json:"outcome"`
	Rationale    string `json:"rationale"`
	ResolvedAt   uint64 `json:"resolved_at"`
	Appealed     bool   `json:"appealed"`
	AppealsCount uint64 `json:"appeals_count"`
	Final        bool   `json:"final"`
	FeePaid      bool   `json:"fee_paid"`
}

func toResolutionResponse(r resolution.Resolution) resolutionResponse {
	return resolutionResponse{
		Mediator:     r.Mediator,
		Outcome:      r.Outcome,
		Rationale:    r.Rationale,
		ResolvedAt:   r.ResolvedAt,
		Appealed:     r.Appealed,
		AppealsCount: r.AppealsCount,
		Final:        r.Final,
		FeePaid:      r.FeePaid,
	}
}

type partiesResponse struct {
	Landlord    string `json:"landlord"`
	Tenant      string `json:"tenant"`
	DisputeType string `json:"dispute_type"`
	ClaimAmount uint64 `json:"claim_amount"`
}

func toPartiesResponse(p dispute.Parties) partiesResponse {
	return partiesResponse{Landlord: p.Landlord, Tenant: p.Tenant, DisputeType: p.DisputeType, ClaimAmount: p.ClaimAmount}
}

type paramsResponse struct {
	AppealWindow  uint64 `json:"appeal_window"`
	MaxAppeals    uint64 `json:"max_appeals"`
	ResolutionFee uint64 `json:"resolution_fee"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "register", err)
		return
	}
	writeValue(w, http.StatusCreated, map[string]any{"id": p.ID, "role": p.Role})
}

// handleProvision lets an admin principal create reserved or elevated
// principals that open registration refuses.
func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	if roleFromContext(r.Context()) != auth.RoleAdmin {
		writeFailure(w, http.StatusForbidden, 0, "admin-only")
		return
	}
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := s.authService.Provision(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "provision", err)
		return
	}
	httpLogger().InfoContext(r.Context(), "principal provisioned",
		"principal", p.ID, "role", p.Role, "by", callerFromContext(r.Context()))
	writeValue(w, http.StatusCreated, map[string]any{"id": p.ID, "role": p.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeError(w, r, "login", err)
		return
	}
	writeValue(w, http.StatusOK, map[string]any{"token": res.Token, "id": res.Principal.ID, "role": res.Principal.Role})
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	res, found, err := s.resolutionService.GetResolution(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get_resolution", err)
		return
	}
	if !found {
		writeValue(w, http.StatusNotFound, nil)
		return
	}
	writeValue(w, http.StatusOK, toResolutionResponse(res))
}

func (s *Server) handleGetParties(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	p, found, err := s.resolutionService.GetDisputeParties(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get_dispute_parties", err)
		return
	}
	if !found {
		writeValue(w, http.StatusNotFound, nil)
		return
	}
	writeValue(w, http.StatusOK, toPartiesResponse(p))
}

func (s *Server) handleListMediators(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	if s.mediators == nil {
		writeFailure(w, http.StatusNotFound, 0, "not-available")
		return
	}
	list, err := s.mediators.ListByDispute(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "list_mediators", err)
		return
	}
	writeValue(w, http.StatusOK, list)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	p, err := s.resolutionService.Params(r.Context())
	if err != nil {
		s.writeError(w, r, "get_params", err)
		return
	}
	writeValue(w, http.StatusOK, paramsResponse{AppealWindow: p.AppealWindow, MaxAppeals: p.MaxAppeals, ResolutionFee: p.ResolutionFee})
}

func (s *Server) handleGetParam(w http.ResponseWriter, r *http.Request) {
	p, err := s.resolutionService.Params(r.Context())
	if err != nil {
		s.writeError(w, r, "get_param", err)
		return
	}
	var v uint64
	switch chi.URLParam(r, "name") {
	case "appeal-window":
		v = p.AppealWindow
	case "max-appeals":
		v = p.MaxAppeals
	case "resolution-fee":
		v = p.ResolutionFee
	default:
		writeFailure(w, http.StatusNotFound, 0, "unknown-param")
		return
	}
	writeValue(w, http.StatusOK, v)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var body struct {
		Outcome   string `json:"outcome"`
		Rationale string `json:"rationale"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	call, ok := s.call(w, r)
	if !ok {
		return
	}
	if err := s.resolutionService.ProposeResolution(r.Context(), call, id, body.Outcome, body.Rationale); err != nil {
		s.writeError(w, r, "propose_resolution", err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

func (s *Server) handlePayFee(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	call, ok := s.call(w, r)
	if !ok {
		return
	}
	if err := s.resolutionService.PayResolutionFee(r.Context(), call, id); err != nil {
		s.writeError(w, r, "pay_resolution_fee", err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	call, ok := s.call(w, r)
	if !ok {
		return
	}
	if err := s.resolutionService.FinalizeResolution(r.Context(), call, id); err != nil {
		s.writeError(w, r, "finalize_resolution", err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

func (s *Server) handleAppeal(w http.ResponseWriter, r *http.Request) {
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	call, ok := s.call(w, r)
	if !ok {
		return
	}
	if err := s.resolutionService.AppealResolution(r.Context(), call, id, body.Reason); err != nil {
		s.writeError(w, r, "appeal_resolution", err)
		return
	}
	writeValue(w, http.StatusOK, true)
}

func (s *Server) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *uint64 `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Value == nil {
		writeFailure(w, http.StatusBadRequest, 0, "missing-value")
		return
	}

	ctx := r.Context()
	caller := callerFromContext(ctx)
	name := chi.URLParam(r, "name")
	var err error
	switch name {
	case "appeal-window":
		err = s.resolutionService.SetAppealWindow(ctx, caller, *body.Value)
	case "max-appeals":
		err = s.resolutionService.SetMaxAppeals(ctx, caller, *body.Value)
	case "resolution-fee":
		err = s.resolutionService.SetResolutionFee(ctx, caller, *body.Value)
	default:
		writeFailure(w, http.StatusNotFound, 0, "unknown-param")
		return
	}
	if err != nil {
		s.writeError(w, r, "set_param", err)
		return
	}
	httpLogger().InfoContext(ctx, "parameter updated",
		"param", name, "value", *body.Value, "caller", caller, "role", roleFromContext(ctx))
	writeValue(w, http.StatusOK, true)
}

// call binds the authenticated caller to the current chain height.
func (s *Server) call(w http.ResponseWriter, r *http.Request) (resolution.Call, bool) {
	height, err := s.heights.CurrentHeight(r.Context())
	if err != nil {
		s.writeError(w, r, "current_height", err)
		return resolution.Call{}, false
	}
	return resolution.Call{Caller: callerFromContext(r.Context()), Height: height}, true
}

func disputeID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, 0, "invalid-dispute-id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, 0, "invalid-body")
		return false
	}
	return true
}
