package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// MemoryStore is an in-process Store for tests and single-node runs. The
// insert-if-absent guarantee is provided by a mutex around the approval set;
// the SQL store provides the same guarantee with a uniqueness constraint.
type MemoryStore struct {
	mu        sync.Mutex
	wallets   map[wallet.Address]WalletRecord
	pending   map[string]PendingRecord  // key: wallet|executionID
	approvals map[string]ApprovalRecord // key: wallet|executionID|signer
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:   make(map[wallet.Address]WalletRecord),
		pending:   make(map[string]PendingRecord),
		approvals: make(map[string]ApprovalRecord),
	}
}

func pendingKey(addr wallet.Address, executionID string) string {
	return string(addr) + "|" + executionID
}

func approvalKey(addr wallet.Address, executionID string, signer wallet.Address) string {
	return string(addr) + "|" + executionID + "|" + string(signer)
}

func (m *MemoryStore) UpsertWallet(_ context.Context, rec WalletRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[rec.Address] = rec
	return nil
}

func (m *MemoryStore) GetWallet(_ context.Context, addr wallet.Address) (WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.wallets[addr]
	if !ok {
		return WalletRecord{}, fmt.Errorf("%w: %s", ErrWalletNotFound, addr)
	}
	return rec, nil
}

func (m *MemoryStore) ListWalletsBySigner(_ context.Context, signer wallet.Address) ([]WalletRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []WalletRecord
	for _, rec := range m.wallets {
		if rec.IsSigner(signer) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (m *MemoryStore) UpsertPending(_ context.Context, rec PendingRecord) (PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pendingKey(rec.Wallet, rec.ExecutionID)
	if existing, ok := m.pending[k]; ok {
		// Idempotent open: refresh metadata, keep identity and progress.
		existing.Mode = rec.Mode
		existing.ExecutionData = rec.ExecutionData
		existing.ThresholdType = rec.ThresholdType
		existing.ProposedAt = rec.ProposedAt
		existing.UpdatedAt = rec.UpdatedAt
		m.pending[k] = existing
		return existing, nil
	}
	rec.RecordID = uuid.NewString()
	m.pending[k] = rec
	return rec, nil
}

func (m *MemoryStore) GetPending(_ context.Context, addr wallet.Address, executionID string) (PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pending[pendingKey(addr, executionID)]
	if !ok {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	return rec, nil
}

func (m *MemoryStore) ListPending(_ context.Context, addr wallet.Address) ([]PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PendingRecord
	for _, rec := range m.pending {
		if rec.Wallet == addr {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) InsertApproval(_ context.Context, rec ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := approvalKey(rec.Wallet, rec.ExecutionID, rec.Signer)
	if _, exists := m.approvals[k]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateApproval, rec.Signer)
	}
	m.approvals[k] = rec
	return nil
}

func (m *MemoryStore) ListApprovals(_ context.Context, addr wallet.Address, executionID string) ([]ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ApprovalRecord
	for _, rec := range m.approvals {
		if rec.Wallet == addr && rec.ExecutionID == executionID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateProgress(_ context.Context, addr wallet.Address, executionID string, count uint, ready bool) (PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pendingKey(addr, executionID)
	rec, ok := m.pending[k]
	if !ok {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	rec.ApprovalCount = count
	rec.Ready = ready
	m.pending[k] = rec
	return rec, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, addr wallet.Address, executionID string, status Status, at time.Time) (PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pendingKey(addr, executionID)
	rec, ok := m.pending[k]
	if !ok {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	rec.Status = status
	rec.UpdatedAt = at
	m.pending[k] = rec
	return rec, nil
}
