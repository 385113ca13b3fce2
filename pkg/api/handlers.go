package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shieldwallet/shieldwallet/pkg/coordinator"
	"github.com/shieldwallet/shieldwallet/pkg/signing"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// maxBodyBytes caps request bodies. Approval payloads are small; anything
// near this limit is malformed or hostile.
const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeCoordinatorError maps coordinator domain errors to HTTP statuses.
// Authorization failures are 403, integrity failures 409, missing state 404.
// Each mapped failure counts as a rejection with its reason.
func (s *Server) writeCoordinatorError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, coordinator.ErrInvalidCreator),
		errors.Is(err, coordinator.ErrUnauthorizedSigner):
		s.metrics.RecordRejection(ctx, "unauthorized_signer")
		WriteErrorR(w, r, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, coordinator.ErrAlreadySigned):
		s.metrics.RecordRejection(ctx, "duplicate_approval")
		WriteErrorR(w, r, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, coordinator.ErrWalletNotFound),
		errors.Is(err, coordinator.ErrRecordNotFound):
		s.metrics.RecordRejection(ctx, "not_found")
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, wallet.ErrInvalidAddress):
		s.metrics.RecordRejection(ctx, "invalid_address")
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.metrics.RecordRejection(ctx, "internal")
		WriteErrorR(w, r, http.StatusInternalServerError, "Internal Server Error",
			"An unexpected error occurred. Please try again later.")
	}
}

type registerWalletRequest struct {
	Address     string            `json:"address"`
	AccountName string            `json:"account_name"`
	Network     string            `json:"network"`
	Signers     []string          `json:"signers"`
	Thresholds  wallet.Thresholds `json:"thresholds"`
	Proposer    string            `json:"proposer,omitempty"`
	DelaySec    uint64            `json:"timelock_delay_seconds"`
}

func (s *Server) handleRegisterWallet(w http.ResponseWriter, r *http.Request) {
	var req registerWalletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	signers := make([]wallet.Address, len(req.Signers))
	for i, sg := range req.Signers {
		signers[i] = wallet.Address(sg)
	}
	rec := coordinator.WalletRecord{
		Address:     wallet.Address(req.Address),
		AccountName: req.AccountName,
		Network:     req.Network,
		Signers:     signers,
		Thresholds:  req.Thresholds,
		Proposer:    wallet.Address(req.Proposer),
		DelaySec:    req.DelaySec,
		Creator:     callerAddress(r),
	}
	stored, err := s.service.RegisterWallet(r.Context(), rec)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	signer := r.URL.Query().Get("signer")
	if signer == "" {
		WriteBadRequest(w, "Query parameter 'signer' is required")
		return
	}
	records, err := s.service.WalletsBySigner(r.Context(), wallet.Address(signer))
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallets": records})
}

type openPendingRequest struct {
	ExecutionID   string `json:"execution_id"`
	Mode          string `json:"mode"`
	ExecutionData string `json:"execution_data"`
	ThresholdType string `json:"threshold_type"`
	ProposedAt    int64  `json:"proposed_at"`
	CreatedBy     string `json:"created_by,omitempty"`
}

func (s *Server) handleOpenPending(w http.ResponseWriter, r *http.Request) {
	walletAddr := wallet.Address(r.PathValue("wallet"))
	var req openPendingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tt, err := wallet.ParseThresholdType(req.ThresholdType)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	createdBy := callerAddress(r)
	if createdBy == "" {
		createdBy = wallet.Address(req.CreatedBy)
	}
	summary := coordinator.ExecutionSummary{
		ExecutionID:   req.ExecutionID,
		Mode:          req.Mode,
		ExecutionData: req.ExecutionData,
		ThresholdType: tt,
		ProposedAt:    req.ProposedAt,
	}
	rec, err := s.service.OpenPending(r.Context(), walletAddr, summary, createdBy)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	s.metrics.RecordProposal(r.Context())
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	walletAddr := wallet.Address(r.PathValue("wallet"))
	records, err := s.service.ListPending(r.Context(), walletAddr)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	walletAddr := wallet.Address(r.PathValue("wallet"))
	executionID := r.PathValue("id")
	rec, approvals, err := s.service.GetRecord(r.Context(), walletAddr, executionID)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution": rec,
		"approvals": approvals,
	})
}

type submitApprovalRequest struct {
	Signer    string `json:"signer"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

func (s *Server) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	walletAddr := wallet.Address(r.PathValue("wallet"))
	executionID := r.PathValue("id")
	var req submitApprovalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	approval := signing.Approval{
		Signer:    wallet.Address(req.Signer),
		PublicKey: req.PublicKey,
		Signature: req.Signature,
	}
	rec, err := s.service.SubmitApproval(r.Context(), walletAddr, executionID, approval)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	s.metrics.RecordApproval(r.Context())
	writeJSON(w, http.StatusCreated, rec)
}

type markStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleMarkStatus(w http.ResponseWriter, r *http.Request) {
	walletAddr := wallet.Address(r.PathValue("wallet"))
	executionID := r.PathValue("id")
	var req markStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	status := coordinator.Status(req.Status)
	switch status {
	case coordinator.StatusExecuted, coordinator.StatusCancelled:
	default:
		WriteBadRequest(w, "Status must be 'executed' or 'cancelled'")
		return
	}
	rec, err := s.service.MarkStatus(r.Context(), walletAddr, executionID, status)
	if err != nil {
		s.writeCoordinatorError(w, r, err)
		return
	}
	if status == coordinator.StatusExecuted {
		s.metrics.RecordExecution(r.Context())
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callerAddress returns the authenticated signer identity, or empty when the
// server runs without authentication.
func callerAddress(r *http.Request) wallet.Address {
	if p := GetPrincipal(r.Context()); p != nil {
		return p.Signer
	}
	return ""
}
