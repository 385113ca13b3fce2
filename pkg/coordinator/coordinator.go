// Package coordinator aggregates owner approvals off-ledger before
// submission. It validates signer eligibility against a synced policy
// snapshot and guarantees at-most-one stored approval per (execution id,
// signer) even under concurrent submission, the property that keeps
// threshold counting honest. The coordinator is an aggregation layer, never
// the final authority: the execution engine re-derives every authorization
// at execute time.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/signing"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

var (
	ErrInvalidCreator     = errors.New("invalid creator")
	ErrRecordNotFound     = errors.New("pending record not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrUnauthorizedSigner = errors.New("unauthorized signer")
	ErrAlreadySigned      = errors.New("already signed")
)

// Status of a pending record, mirrored from the authoritative ledger state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusCancelled Status = "cancelled"
)

// WalletRecord is the coordinator's synced snapshot of one wallet's policy.
// It may lag the ledger by a bounded window; that lag is an eventual-
// consistency boundary, not a security boundary, because the engine
// re-validates at execute time.
type WalletRecord struct {
	Address     wallet.Address    `json:"address"`
	AccountName string            `json:"account_name"`
	Network     string            `json:"network"`
	Signers     []wallet.Address  `json:"signers"`
	Thresholds  wallet.Thresholds `json:"thresholds"`
	Proposer    wallet.Address    `json:"proposer"`
	DelaySec    uint64            `json:"timelock_delay_seconds"`
	Creator     wallet.Address    `json:"creator"`
	SyncedAt    time.Time         `json:"synced_at"`
}

// IsSigner reports snapshot owner membership, casing-insensitive.
func (w WalletRecord) IsSigner(a wallet.Address) bool {
	a = wallet.NormalizeAddress(string(a))
	for _, s := range w.Signers {
		if wallet.NormalizeAddress(string(s)) == a {
			return true
		}
	}
	return false
}

// Threshold returns the snapshot value gating the given threshold type.
func (w WalletRecord) Threshold(t wallet.ThresholdType) uint {
	switch t {
	case wallet.ThresholdManagement:
		return w.Thresholds.Management
	case wallet.ThresholdRevocation:
		return w.Thresholds.Revocation
	default:
		return w.Thresholds.Execution
	}
}

// ExecutionSummary describes the proposal a pending record is opened for.
// ExecutionData carries the canonical JSON of the calls; signatures are made
// over the execution id bytes, never over this summary.
type ExecutionSummary struct {
	ExecutionID   string               `json:"execution_id"`
	Mode          string               `json:"mode"`
	ExecutionData string               `json:"execution_data"`
	ThresholdType wallet.ThresholdType `json:"threshold_type"`
	ProposedAt    int64                `json:"proposed_at"`
}

// PendingRecord is one signature-collection record.
type PendingRecord struct {
	RecordID      string               `json:"record_id"`
	Wallet        wallet.Address       `json:"wallet"`
	ExecutionID   string               `json:"execution_id"`
	Mode          string               `json:"mode"`
	ExecutionData string               `json:"execution_data"`
	ThresholdType wallet.ThresholdType `json:"threshold_type"`
	ProposedAt    int64                `json:"proposed_at"`
	CreatedBy     wallet.Address       `json:"created_by"`
	Status        Status               `json:"status"`
	Ready         bool                 `json:"ready_for_submission"`
	ApprovalCount uint                 `json:"approval_count"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// ApprovalRecord is one stored owner approval. Immutable once created.
type ApprovalRecord struct {
	Wallet      wallet.Address `json:"wallet"`
	ExecutionID string         `json:"execution_id"`
	Signer      wallet.Address `json:"signer"`
	PublicKey   string         `json:"public_key"`
	Signature   string         `json:"signature"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// Approval converts the stored record to the engine's approval shape.
func (a ApprovalRecord) Approval() signing.Approval {
	return signing.Approval{
		Signer:      a.Signer,
		PublicKey:   a.PublicKey,
		Signature:   a.Signature,
		SubmittedAt: a.SubmittedAt,
	}
}

// Clock provides time for record timestamps; injected for deterministic
// tests.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Service implements the coordinator operations on top of a Store.
type Service struct {
	store  Store
	clock  Clock
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a time source.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires a coordinator service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  wallClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWallet stores or refreshes the synced policy snapshot of a wallet.
func (s *Service) RegisterWallet(ctx context.Context, rec WalletRecord) (WalletRecord, error) {
	rec.Address = wallet.NormalizeAddress(string(rec.Address))
	if err := rec.Address.Validate(); err != nil {
		return WalletRecord{}, err
	}
	if len(rec.Signers) == 0 {
		return WalletRecord{}, fmt.Errorf("wallet %s: no signers", rec.Address)
	}
	for i, sg := range rec.Signers {
		rec.Signers[i] = wallet.NormalizeAddress(string(sg))
	}
	rec.Creator = wallet.NormalizeAddress(string(rec.Creator))
	rec.Proposer = wallet.NormalizeAddress(string(rec.Proposer))
	rec.SyncedAt = s.clock.Now()
	if err := s.store.UpsertWallet(ctx, rec); err != nil {
		return WalletRecord{}, fmt.Errorf("upsert wallet: %w", err)
	}
	s.logger.Info("wallet snapshot registered", "wallet", rec.Address, "signers", len(rec.Signers))
	return rec, nil
}

// WalletsBySigner lists the wallets a signer belongs to.
func (s *Service) WalletsBySigner(ctx context.Context, signer wallet.Address) ([]WalletRecord, error) {
	return s.store.ListWalletsBySigner(ctx, wallet.NormalizeAddress(string(signer)))
}

// OpenPending opens (or idempotently refreshes) the signature-collection
// record for an execution. Only a snapshot owner may open records.
func (s *Service) OpenPending(ctx context.Context, walletAddr wallet.Address, summary ExecutionSummary, createdBy wallet.Address) (PendingRecord, error) {
	walletAddr = wallet.NormalizeAddress(string(walletAddr))
	createdBy = wallet.NormalizeAddress(string(createdBy))

	wrec, err := s.store.GetWallet(ctx, walletAddr)
	if err != nil {
		return PendingRecord{}, err
	}
	if !wrec.IsSigner(createdBy) {
		return PendingRecord{}, fmt.Errorf("%w: %s is not a signer of %s", ErrInvalidCreator, createdBy, walletAddr)
	}
	if summary.ExecutionID == "" {
		return PendingRecord{}, fmt.Errorf("execution id required")
	}

	now := s.clock.Now()
	rec := PendingRecord{
		Wallet:        walletAddr,
		ExecutionID:   summary.ExecutionID,
		Mode:          summary.Mode,
		ExecutionData: summary.ExecutionData,
		ThresholdType: summary.ThresholdType,
		ProposedAt:    summary.ProposedAt,
		CreatedBy:     createdBy,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	stored, err := s.store.UpsertPending(ctx, rec)
	if err != nil {
		return PendingRecord{}, fmt.Errorf("upsert pending: %w", err)
	}
	s.logger.Info("pending record opened",
		"wallet", walletAddr, "execution_id", summary.ExecutionID, "created_by", createdBy)
	return stored, nil
}

// SubmitApproval appends one owner approval. The duplicate check is enforced
// by the store's insert-if-absent semantics, not read-then-write, so two
// racing submissions from the same signer can never both land.
func (s *Service) SubmitApproval(ctx context.Context, walletAddr wallet.Address, executionID string, approval signing.Approval) (PendingRecord, error) {
	walletAddr = wallet.NormalizeAddress(string(walletAddr))
	signer := wallet.NormalizeAddress(string(approval.Signer))

	rec, err := s.store.GetPending(ctx, walletAddr, executionID)
	if err != nil {
		return PendingRecord{}, err
	}
	wrec, err := s.store.GetWallet(ctx, walletAddr)
	if err != nil {
		return PendingRecord{}, err
	}
	if !wrec.IsSigner(signer) {
		return PendingRecord{}, fmt.Errorf("%w: %s", ErrUnauthorizedSigner, signer)
	}
	if err := signing.VerifyApproval(approval, executionID); err != nil {
		return PendingRecord{}, fmt.Errorf("%w: %v", ErrUnauthorizedSigner, err)
	}

	if err := s.store.InsertApproval(ctx, ApprovalRecord{
		Wallet:      walletAddr,
		ExecutionID: executionID,
		Signer:      signer,
		PublicKey:   approval.PublicKey,
		Signature:   approval.Signature,
		SubmittedAt: s.clock.Now(),
	}); err != nil {
		if errors.Is(err, ErrDuplicateApproval) {
			return PendingRecord{}, fmt.Errorf("%w: %s", ErrAlreadySigned, signer)
		}
		return PendingRecord{}, fmt.Errorf("insert approval: %w", err)
	}

	approvals, err := s.store.ListApprovals(ctx, walletAddr, executionID)
	if err != nil {
		return PendingRecord{}, fmt.Errorf("list approvals: %w", err)
	}
	count := distinctSigners(approvals)
	ready := count >= wrec.Threshold(rec.ThresholdType)
	stored, err := s.store.UpdateProgress(ctx, walletAddr, executionID, count, ready)
	if err != nil {
		return PendingRecord{}, fmt.Errorf("update progress: %w", err)
	}
	s.logger.Info("approval recorded",
		"wallet", walletAddr, "execution_id", executionID,
		"signer", signer, "count", count, "ready", ready)
	return stored, nil
}

// distinctSigners counts unique normalized signer identities.
func distinctSigners(approvals []ApprovalRecord) uint {
	seen := make(map[wallet.Address]bool, len(approvals))
	for _, a := range approvals {
		seen[wallet.NormalizeAddress(string(a.Signer))] = true
	}
	return uint(len(seen))
}

// ListPending returns this wallet's records, newest first.
func (s *Service) ListPending(ctx context.Context, walletAddr wallet.Address) ([]PendingRecord, error) {
	return s.store.ListPending(ctx, wallet.NormalizeAddress(string(walletAddr)))
}

// GetRecord returns one record with its collected approvals.
func (s *Service) GetRecord(ctx context.Context, walletAddr wallet.Address, executionID string) (PendingRecord, []ApprovalRecord, error) {
	walletAddr = wallet.NormalizeAddress(string(walletAddr))
	rec, err := s.store.GetPending(ctx, walletAddr, executionID)
	if err != nil {
		return PendingRecord{}, nil, err
	}
	approvals, err := s.store.ListApprovals(ctx, walletAddr, executionID)
	if err != nil {
		return PendingRecord{}, nil, err
	}
	return rec, approvals, nil
}

// Bundle returns the approvals of a ready record in the engine's shape, for
// the party submitting the execute call.
func (s *Service) Bundle(ctx context.Context, walletAddr wallet.Address, executionID string) ([]signing.Approval, error) {
	_, approvals, err := s.GetRecord(ctx, walletAddr, executionID)
	if err != nil {
		return nil, err
	}
	out := make([]signing.Approval, len(approvals))
	for i, a := range approvals {
		out[i] = a.Approval()
	}
	return out, nil
}

// MarkStatus mirrors an observed terminal ledger transition onto the record.
func (s *Service) MarkStatus(ctx context.Context, walletAddr wallet.Address, executionID string, status Status) (PendingRecord, error) {
	walletAddr = wallet.NormalizeAddress(string(walletAddr))
	rec, err := s.store.SetStatus(ctx, walletAddr, executionID, status, s.clock.Now())
	if err != nil {
		return PendingRecord{}, err
	}
	s.logger.Info("pending record status updated",
		"wallet", walletAddr, "execution_id", executionID, "status", status)
	return rec, nil
}
