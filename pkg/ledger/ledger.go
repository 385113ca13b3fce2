// Package ledger is the append-only, hash-chained transition log the
// execution engine writes every state transition to. Each entry links to its
// predecessor by content hash; no entry is ever mutated or deleted, which
// makes the log the audit trail for "what happened to this wallet and when".
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/canonical"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Entry types written by the engine.
const (
	EntryProposed = "PROPOSED"
	EntryExecuted = "EXECUTED"
	EntryRevoked  = "REVOKED"
)

// Entry is one immutable, hash-chained transition record.
type Entry struct {
	Sequence    uint64         `json:"sequence"`
	EntryType   string         `json:"entry_type"`
	ExecutionID string         `json:"execution_id"`
	Actor       wallet.Address `json:"actor,omitempty"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash"`
	Timestamp   time.Time      `json:"timestamp"`
	Data        map[string]any `json:"data,omitempty"`
}

// Log is an append-only chain of transitions for one wallet.
type Log struct {
	mu       sync.RWMutex
	wallet   wallet.Address
	entries  []Entry
	headHash string
	clock    func() time.Time
}

// NewLog creates an empty log for the given wallet.
func NewLog(w wallet.Address) *Log {
	return &Log{
		wallet:   w,
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

type hashInput struct {
	Wallet      wallet.Address `json:"wallet"`
	Seq         uint64         `json:"seq"`
	Type        string         `json:"type"`
	ExecutionID string         `json:"execution_id"`
	Data        map[string]any `json:"data"`
	PrevHash    string         `json:"prev"`
}

// Append adds a transition entry and returns its sequence number.
func (l *Log) Append(entryType, executionID string, actor wallet.Address, data map[string]any) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := uint64(len(l.entries)) + 1
	contentHash, err := canonical.Hash(hashInput{
		Wallet: l.wallet, Seq: seq, Type: entryType,
		ExecutionID: executionID, Data: data, PrevHash: l.headHash,
	})
	if err != nil {
		return 0, fmt.Errorf("hash entry: %w", err)
	}

	l.entries = append(l.entries, Entry{
		Sequence:    seq,
		EntryType:   entryType,
		ExecutionID: executionID,
		Actor:       actor,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Data:        data,
	})
	l.headHash = contentHash
	return seq, nil
}

// Get retrieves an entry by sequence number.
func (l *Log) Get(seq uint64) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := l.entries[seq-1]
	return &entry, nil
}

// ByExecution returns every entry recorded for an execution id, oldest first.
func (l *Log) ByExecution(executionID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify walks the whole chain recomputing hashes. It returns false with a
// reason on the first break.
func (l *Log) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range l.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}
		computed, err := canonical.Hash(hashInput{
			Wallet: l.wallet, Seq: entry.Sequence, Type: entry.EntryType,
			ExecutionID: entry.ExecutionID, Data: entry.Data, PrevHash: entry.PrevHash,
		})
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}
	return true, "chain verified"
}

// Wallet returns the wallet this log belongs to.
func (l *Log) Wallet() wallet.Address {
	return l.wallet
}
