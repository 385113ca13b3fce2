// Package engine is the authoritative execution state machine of one
// wallet. It enforces the whitelist at proposal time and the timelock,
// signer-membership and threshold rules at execution time, and it is the
// single writer of request state. All engine operations are serialized, the
// way the settlement ledger serializes state transitions per wallet.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/ledger"
	"github.com/shieldwallet/shieldwallet/pkg/signing"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Clock provides the chain time used for timelock checks and proposal
// timestamps. Engine logic never reads ambient wall time directly, so
// timestamp-derived ids stay deterministic and testable.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Engine holds one wallet's policy and pending requests.
type Engine struct {
	mu sync.Mutex

	address    wallet.Address
	policy     *wallet.Policy
	requests   map[string]*Request
	clock      Clock
	dispatcher Dispatcher
	log        *ledger.Log
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a chain-time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDispatcher injects the outward call dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithLogger injects a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine for the wallet at the given address, governed by the
// given policy.
func New(address wallet.Address, policy *wallet.Policy, opts ...Option) (*Engine, error) {
	if err := address.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		address:    address,
		policy:     policy,
		requests:   make(map[string]*Request),
		clock:      wallClock{},
		dispatcher: NopDispatcher{},
		log:        ledger.NewLog(address),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address returns the wallet's own address.
func (e *Engine) Address() wallet.Address { return e.address }

// Log exposes the hash-chained transition log.
func (e *Engine) Log() *ledger.Log { return e.log }

// Propose validates an intended action against the whitelist and records it.
// It returns the deterministic execution identifier approvals must be signed
// over.
func (e *Engine) Propose(ctx context.Context, mode Mode, calls []Call, actor wallet.Address) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	actor = wallet.NormalizeAddress(string(actor))
	if !e.policy.CanPropose(actor) {
		return "", fmt.Errorf("%w: %s", ErrUnauthorizedProposer, actor)
	}
	if err := mode.Validate(); err != nil {
		return "", err
	}
	switch mode {
	case ModeSingleCall:
		if len(calls) != 1 {
			return "", fmt.Errorf("%w: single-call mode requires exactly one call, got %d", ErrInvalidExecutionMode, len(calls))
		}
	case ModeBatchCall:
		if len(calls) == 0 {
			return "", fmt.Errorf("%w: batch mode requires at least one call", ErrInvalidExecutionMode)
		}
	}

	thresholdType := wallet.ThresholdExecution
	normalized := make([]Call, len(calls))
	for i, c := range calls {
		c.Target = wallet.NormalizeAddress(string(c.Target))
		sel, err := c.Selector()
		if err != nil {
			return "", fmt.Errorf("%w: call %d: %v", ErrCallNotAllowed, i, err)
		}
		lookup := c.Target
		if e.isSelfCall(c.Target, sel) {
			// Management surface entries are whitelisted under the zero
			// address; any self-call escalates the gate to the management
			// threshold.
			lookup = wallet.ZeroAddress
			thresholdType = wallet.ThresholdManagement
		}
		entry, ok := e.policy.Whitelist(lookup, sel)
		if !ok {
			return "", fmt.Errorf("%w: call %d to %s selector %s", ErrCallNotAllowed, i, c.Target, sel)
		}
		if c.Value > entry.MaxValue {
			return "", fmt.Errorf("%w: call %d value %d exceeds max %d", ErrCallNotAllowed, i, c.Value, entry.MaxValue)
		}
		normalized[i] = c
	}

	proposedAt := e.clock.Now().Unix()
	id, err := DeriveExecutionID(mode, normalized, thresholdType, proposedAt)
	if err != nil {
		return "", err
	}
	if _, exists := e.requests[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrExecutionAlreadyProposed, id)
	}

	e.requests[id] = &Request{
		ID:            id,
		Mode:          mode,
		Calls:         normalized,
		ThresholdType: thresholdType,
		ProposedAt:    proposedAt,
		ProposedBy:    actor,
		State:         StateProposed,
	}
	if _, err := e.log.Append(ledger.EntryProposed, id, actor, map[string]any{
		"mode":           mode.String(),
		"calls":          len(normalized),
		"threshold_type": thresholdType.String(),
	}); err != nil {
		delete(e.requests, id)
		return "", err
	}
	e.logger.Info("execution proposed",
		"wallet", e.address, "execution_id", id,
		"mode", mode.String(), "threshold_type", thresholdType.String(),
		"proposed_by", actor)
	return id, nil
}

// isSelfCall reports whether the call addresses the wallet's own management
// surface.
func (e *Engine) isSelfCall(target wallet.Address, sel wallet.Selector) bool {
	return (target == e.address || target.IsZero()) && managementSelectors[sel]
}

// Execute re-validates the approvals against the current owner set, checks
// timelock and threshold and performs the calls atomically. On success the
// request is Executed, permanently.
func (e *Engine) Execute(ctx context.Context, executionID string, approvals []signing.Approval) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.pending(executionID)
	if err != nil {
		return err
	}
	now := e.clock.Now().Unix()
	eligibleAt := req.ProposedAt + int64(e.policy.Delay())
	if now < eligibleAt {
		return fmt.Errorf("%w: eligible at %d, now %d", ErrTimelockNotElapsed, eligibleAt, now)
	}
	if err := e.countApprovals(executionID, approvals, req.ThresholdType); err != nil {
		return err
	}

	// Stage the transition: management self-calls mutate a policy clone,
	// external calls are dispatched as one atomic batch. Nothing commits
	// until every part has succeeded.
	staged := e.policy.Clone()
	var outward []Call
	for i, c := range req.Calls {
		sel, serr := c.Selector()
		if serr != nil {
			return fmt.Errorf("%w: call %d: %v", ErrCallFailed, i, serr)
		}
		if e.isSelfCall(c.Target, sel) {
			if merr := applyManagement(staged, sel, c.Data); merr != nil {
				return fmt.Errorf("%w: call %d: %v", ErrCallFailed, i, merr)
			}
			continue
		}
		outward = append(outward, c)
	}
	if len(outward) > 0 {
		if derr := e.dispatcher.Execute(ctx, outward); derr != nil {
			return fmt.Errorf("%w: %v", ErrCallFailed, derr)
		}
	}

	e.policy = staged
	req.State = StateExecuted
	req.ExecutedAt = e.clock.Now()
	if _, err := e.log.Append(ledger.EntryExecuted, executionID, "", map[string]any{
		"approvals": len(approvals),
	}); err != nil {
		return err
	}
	e.logger.Info("execution executed", "wallet", e.address, "execution_id", executionID)
	return nil
}

// Revoke cancels a pending request under the revocation threshold. A
// cancelled id is never reused; re-proposing identical content at a
// different timestamp yields a fresh id.
func (e *Engine) Revoke(ctx context.Context, executionID string, approvals []signing.Approval) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.pending(executionID)
	if err != nil {
		return err
	}
	if err := e.countApprovals(executionID, approvals, wallet.ThresholdRevocation); err != nil {
		return err
	}
	req.State = StateCancelled
	if _, err := e.log.Append(ledger.EntryRevoked, executionID, "", map[string]any{
		"approvals": len(approvals),
	}); err != nil {
		return err
	}
	e.logger.Info("execution revoked", "wallet", e.address, "execution_id", executionID)
	return nil
}

// pending returns the request if it exists and is not terminal.
func (e *Engine) pending(executionID string) (*Request, error) {
	req, ok := e.requests[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	if req.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFound, executionID, req.State)
	}
	return req, nil
}

// countApprovals verifies every approval is signed over exactly this
// execution id by a current owner and that distinct signers reach the
// threshold. Membership is checked against the current owner set, not the
// set at proposal time: an owner removed during the timelock window loses
// authorization.
func (e *Engine) countApprovals(executionID string, approvals []signing.Approval, t wallet.ThresholdType) error {
	distinct := make(map[wallet.Address]bool)
	for _, a := range approvals {
		if err := signing.VerifyApproval(a, executionID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		signer := wallet.NormalizeAddress(string(a.Signer))
		if !e.policy.IsOwner(signer) {
			return fmt.Errorf("%w: %s", ErrUnauthorizedSigner, signer)
		}
		distinct[signer] = true
	}
	if need := e.policy.Threshold(t); uint(len(distinct)) < need {
		return fmt.Errorf("%w: %d of %d distinct approvals (%s)", ErrThresholdNotMet, len(distinct), need, t)
	}
	return nil
}

// GetRequest returns a copy of the request. A pending request whose timelock
// has elapsed reports StateReady; readiness is advisory and re-derived, the
// stored state only moves on Execute/Revoke.
func (e *Engine) GetRequest(executionID string) (Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[executionID]
	if !ok {
		return Request{}, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	out := *req
	out.Calls = append([]Call(nil), req.Calls...)
	if out.State == StateProposed && e.clock.Now().Unix() >= req.ProposedAt+int64(e.policy.Delay()) {
		out.State = StateReady
	}
	return out, nil
}

// IsExecution reports whether the id has executed. This is the ledger-side
// truth the coordinator's advisory flags defer to.
func (e *Engine) IsExecution(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, ok := e.requests[executionID]
	return ok && req.State == StateExecuted
}

// Read views over the live policy.

func (e *Engine) Owners() []wallet.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Owners()
}

func (e *Engine) ExecutionThreshold() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Thresholds().Execution
}

func (e *Engine) ManagementThreshold() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Thresholds().Management
}

func (e *Engine) RevocationThreshold() uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Thresholds().Revocation
}

func (e *Engine) Proposer() wallet.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Proposer()
}

func (e *Engine) Delay() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Delay()
}

// Whitelist reports whether (target, selector) is allowed and the value cap
// if so.
func (e *Engine) Whitelist(target wallet.Address, selector wallet.Selector) (allowed bool, maxValue uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.policy.Whitelist(target, selector)
	if !ok {
		return false, 0
	}
	return true, entry.MaxValue
}

// PolicySnapshot returns a deep copy of the live policy for off-ledger
// consumers (the coordinator's synced view).
func (e *Engine) PolicySnapshot() *wallet.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy.Clone()
}
