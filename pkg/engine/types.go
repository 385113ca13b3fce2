package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/canonical"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Mode is the 32-byte execution mode word. Only the leading byte is
// significant; the remaining bytes are reserved and must be zero.
type Mode string

const (
	// ModeSingleCall executes exactly one call.
	ModeSingleCall Mode = "0x0000000000000000000000000000000000000000000000000000000000000000"
	// ModeBatchCall executes an ordered sequence of calls atomically.
	ModeBatchCall Mode = "0x0100000000000000000000000000000000000000000000000000000000000000"
)

// Validate rejects anything but the two recognized mode words.
func (m Mode) Validate() error {
	switch m {
	case ModeSingleCall, ModeBatchCall:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidExecutionMode, m)
}

// String implements fmt.Stringer with a short name for logs.
func (m Mode) String() string {
	switch m {
	case ModeSingleCall:
		return "CALL"
	case ModeBatchCall:
		return "BATCH"
	default:
		return string(m)
	}
}

// Call is one (target, value, callData) triple. Data is 0x-prefixed hex; its
// leading 4 bytes are the function selector the whitelist is keyed by.
type Call struct {
	Target wallet.Address `json:"target"`
	Value  uint64         `json:"value"`
	Data   string         `json:"data"`
}

// Selector extracts the leading 4 bytes of the call data. Calls too short to
// carry a selector cannot match any whitelist entry.
func (c Call) Selector() (wallet.Selector, error) {
	d := strings.ToLower(strings.TrimPrefix(c.Data, "0x"))
	if len(d) < 8 {
		return "", fmt.Errorf("call data carries no selector")
	}
	s := wallet.Selector("0x" + d[:8])
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// State is the lifecycle of an execution request.
type State string

const (
	StateProposed  State = "PROPOSED"
	StateReady     State = "READY"
	StateExecuted  State = "EXECUTED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateCancelled
}

// Request is one proposed action held by the engine.
type Request struct {
	ID            string               `json:"execution_id"`
	Mode          Mode                 `json:"mode"`
	Calls         []Call               `json:"calls"`
	ThresholdType wallet.ThresholdType `json:"threshold_type"`
	ProposedAt    int64                `json:"proposed_at"` // unix seconds
	ProposedBy    wallet.Address       `json:"proposed_by"`
	State         State                `json:"state"`
	ExecutedAt    time.Time            `json:"executed_at,omitzero"`
}

// idPreimage is the exact structure hashed into an execution identifier.
// Changing any field, field name or encoding is a wire-format break: clients
// predict ids by reproducing this canonical form byte-for-byte.
type idPreimage struct {
	Mode          Mode   `json:"mode"`
	Calls         []Call `json:"calls"`
	ThresholdType string `json:"threshold_type"`
	ProposedAt    int64  `json:"proposed_at"`
}

// DeriveExecutionID computes the deterministic identifier of a proposal:
// Keccak-256 over the RFC 8785 canonical JSON of (mode, calls, threshold
// type, proposal timestamp). Identical tuples collide deliberately; the id
// is the dedup key.
func DeriveExecutionID(mode Mode, calls []Call, t wallet.ThresholdType, proposedAt int64) (string, error) {
	if calls == nil {
		calls = []Call{}
	}
	return canonical.Hash(idPreimage{
		Mode:          mode,
		Calls:         calls,
		ThresholdType: t.String(),
		ProposedAt:    proposedAt,
	})
}
