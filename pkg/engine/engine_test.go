package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldwallet/shieldwallet/pkg/signing"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

const (
	walletAddr     wallet.Address  = "0x00000000000000000000000000000000000000aa"
	externalTarget wallet.Address  = "0x00000000000000000000000000000000000000bb"
	transferSel    wallet.Selector = "0xdeadbeef"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type failingDispatcher struct{}

func (failingDispatcher) Execute(context.Context, []Call) error {
	return errors.New("downstream unavailable")
}

type recordingDispatcher struct {
	calls []Call
}

func (d *recordingDispatcher) Execute(_ context.Context, calls []Call) error {
	d.calls = append(d.calls, calls...)
	return nil
}

// testFixture is a three-owner wallet with execution threshold 2, management
// threshold 2, revocation threshold 1 and a 60 second timelock.
type testFixture struct {
	engine  *Engine
	clock   *fakeClock
	signers []*signing.Signer // owners in list order
}

func newFixture(t *testing.T, opts ...Option) *testFixture {
	t.Helper()

	signers := make([]*signing.Signer, 3)
	owners := make([]wallet.Address, 3)
	for i := range signers {
		s, err := signing.NewSigner()
		require.NoError(t, err)
		signers[i] = s
		owners[i] = s.Address()
	}

	entries := []wallet.WhitelistEntry{
		{Target: externalTarget, Selector: transferSel, MaxValue: 1000},
	}
	for sel := range managementSelectors {
		entries = append(entries, wallet.WhitelistEntry{Target: wallet.ZeroAddress, Selector: sel})
	}

	policy, err := wallet.NewPolicy(owners,
		wallet.Thresholds{Management: 2, Execution: 2, Revocation: 1}, "", 60, entries)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	eng, err := New(walletAddr, policy, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)

	return &testFixture{engine: eng, clock: clock, signers: signers}
}

func (f *testFixture) approve(t *testing.T, executionID string, signerIdx ...int) []signing.Approval {
	t.Helper()
	out := make([]signing.Approval, len(signerIdx))
	for i, idx := range signerIdx {
		a, err := f.signers[idx].Approve(executionID)
		require.NoError(t, err)
		out[i] = a
	}
	return out
}

func transferCall(value uint64) Call {
	return Call{Target: externalTarget, Value: value, Data: string(transferSel) + "00"}
}

func TestProposeExecuteLifecycle(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	f := newFixture(t, WithDispatcher(dispatcher))
	ctx := context.Background()
	proposer := f.signers[0].Address()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(100)}, proposer)
	require.NoError(t, err)

	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, StateProposed, req.State)
	assert.Equal(t, wallet.ThresholdExecution, req.ThresholdType)
	assert.Equal(t, proposer, req.ProposedBy)

	// Timelock gates execution even with enough approvals.
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 1))
	assert.ErrorIs(t, err, ErrTimelockNotElapsed)

	f.clock.Advance(60 * time.Second)

	// Readiness is derived, not stored.
	req, err = f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, StateReady, req.State)

	// One approval is below the execution threshold of two.
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0))
	assert.ErrorIs(t, err, ErrThresholdNotMet)

	require.NoError(t, f.engine.Execute(ctx, id, f.approve(t, id, 0, 1)))
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, externalTarget, dispatcher.calls[0].Target)

	req, err = f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, StateExecuted, req.State)
	assert.True(t, f.engine.IsExecution(id))

	// Terminal requests cannot transition again.
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProposeRejectsUnauthorizedActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Propose(context.Background(), ModeSingleCall,
		[]Call{transferCall(1)}, "0x0000000000000000000000000000000000000099")
	assert.ErrorIs(t, err, ErrUnauthorizedProposer)
}

func TestProposeWhitelistEnforcement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proposer := f.signers[0].Address()

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{
			Target: "0x00000000000000000000000000000000000000cc",
			Data:   string(transferSel) + "00",
		}}, proposer)
		assert.ErrorIs(t, err, ErrCallNotAllowed)
	})
	t.Run("unknown selector", func(t *testing.T) {
		_, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{
			Target: externalTarget,
			Data:   "0xcafebabe00",
		}}, proposer)
		assert.ErrorIs(t, err, ErrCallNotAllowed)
	})
	t.Run("value above cap", func(t *testing.T) {
		_, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(1001)}, proposer)
		assert.ErrorIs(t, err, ErrCallNotAllowed)
	})
	t.Run("data too short for selector", func(t *testing.T) {
		_, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{
			Target: externalTarget,
			Data:   "0x12",
		}}, proposer)
		assert.ErrorIs(t, err, ErrCallNotAllowed)
	})
}

func TestProposeModeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proposer := f.signers[0].Address()

	_, err := f.engine.Propose(ctx, Mode("0x02"), []Call{transferCall(1)}, proposer)
	assert.ErrorIs(t, err, ErrInvalidExecutionMode)

	_, err = f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(1), transferCall(2)}, proposer)
	assert.ErrorIs(t, err, ErrInvalidExecutionMode)

	_, err = f.engine.Propose(ctx, ModeBatchCall, nil, proposer)
	assert.ErrorIs(t, err, ErrInvalidExecutionMode)
}

func TestProposeDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proposer := f.signers[0].Address()

	_, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, proposer)
	require.NoError(t, err)

	// Identical tuple at the same timestamp derives the same id.
	_, err = f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, proposer)
	assert.ErrorIs(t, err, ErrExecutionAlreadyProposed)

	// A later timestamp yields a fresh id.
	f.clock.Advance(time.Second)
	_, err = f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, proposer)
	assert.NoError(t, err)
}

func TestDesignatedProposerCanPropose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Install a non-owner proposer through the management surface.
	proposerAddr := wallet.Address("0x0000000000000000000000000000000000000077")
	data, err := EncodeManagementCall(SelSetProposer, SetProposerArgs{Proposer: proposerAddr})
	require.NoError(t, err)

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{Target: walletAddr, Data: data}},
		f.signers[0].Address())
	require.NoError(t, err)

	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, wallet.ThresholdManagement, req.ThresholdType)

	f.clock.Advance(60 * time.Second)
	require.NoError(t, f.engine.Execute(ctx, id, f.approve(t, id, 0, 1)))
	assert.Equal(t, proposerAddr, f.engine.Proposer())

	_, err = f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(1)}, proposerAddr)
	assert.NoError(t, err)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	proposer := f.signers[0].Address()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, proposer)
	require.NoError(t, err)

	// Revocation threshold is one; a single owner cancels.
	require.NoError(t, f.engine.Revoke(ctx, id, f.approve(t, id, 2)))

	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, req.State)

	// A cancelled id is never reused: the identical tuple at the same
	// timestamp still collides with the terminal record.
	_, err = f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, proposer)
	assert.ErrorIs(t, err, ErrExecutionAlreadyProposed)

	f.clock.Advance(60 * time.Second)
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRevokeRejectsNoApprovals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)

	err = f.engine.Revoke(ctx, id, nil)
	assert.ErrorIs(t, err, ErrThresholdNotMet)
}

func TestExecuteRejectsDuplicateSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	// The same signer twice counts once.
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 0))
	assert.ErrorIs(t, err, ErrThresholdNotMet)
}

func TestExecuteRejectsInvalidSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	approvals := f.approve(t, id, 0, 1)
	other, err := f.signers[2].Approve("0x" + "11" +
		"11111111111111111111111111111111111111111111111111111111111111")
	require.NoError(t, err)
	approvals[1] = other

	err = f.engine.Execute(ctx, id, approvals)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestExecuteRejectsNonOwnerSigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	stranger, err := signing.NewSigner()
	require.NoError(t, err)
	outsider, err := stranger.Approve(id)
	require.NoError(t, err)

	approvals := f.approve(t, id, 0)
	err = f.engine.Execute(ctx, id, append(approvals, outsider))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)
}

func TestOwnerRemovedDuringTimelockLosesAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.signers[0], f.signers[1]

	// Proposal approved by A and B, sitting out its timelock.
	transferID, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, a.Address())
	require.NoError(t, err)

	f.clock.Advance(time.Second)

	// Meanwhile the owners remove B.
	data, err := EncodeManagementCall(SelRemoveOwner, RemoveOwnerArgs{
		PrevOwner:  a.Address(),
		Owner:      b.Address(),
		Thresholds: wallet.Thresholds{Management: 2, Execution: 2, Revocation: 1},
	})
	require.NoError(t, err)
	removalID, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{Target: walletAddr, Data: data}}, a.Address())
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)
	require.NoError(t, f.engine.Execute(ctx, removalID, f.approve(t, removalID, 0, 1)))
	assert.Len(t, f.engine.Owners(), 2)

	// B's approval was valid when signed but B is no longer an owner:
	// execute-time membership wins.
	err = f.engine.Execute(ctx, transferID, f.approve(t, transferID, 0, 1))
	assert.ErrorIs(t, err, ErrUnauthorizedSigner)

	// A plus the remaining owner still clears the threshold.
	require.NoError(t, f.engine.Execute(ctx, transferID, f.approve(t, transferID, 0, 2)))
}

func TestBatchManagementAtomicRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.signers[0]

	addData, err := EncodeManagementCall(SelAddOwner, AddOwnerArgs{
		Owner:      "0x0000000000000000000000000000000000000040",
		Thresholds: wallet.Thresholds{Management: 2, Execution: 2, Revocation: 1},
	})
	require.NoError(t, err)
	// Removing a non-member fails, which must roll back the whole batch.
	badRemove, err := EncodeManagementCall(SelRemoveOwner, RemoveOwnerArgs{
		PrevOwner:  a.Address(),
		Owner:      "0x0000000000000000000000000000000000000099",
		Thresholds: wallet.Thresholds{Management: 2, Execution: 2, Revocation: 1},
	})
	require.NoError(t, err)

	id, err := f.engine.Propose(ctx, ModeBatchCall, []Call{
		{Target: walletAddr, Data: addData},
		{Target: walletAddr, Data: badRemove},
	}, a.Address())
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)
	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 1))
	assert.ErrorIs(t, err, ErrCallFailed)

	// The first call's effect did not leak.
	assert.Len(t, f.engine.Owners(), 3)

	// The request survives for a corrected retry, still pending.
	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.NotEqual(t, StateExecuted, req.State)
}

func TestDispatcherFailureKeepsRequestPending(t *testing.T) {
	f := newFixture(t, WithDispatcher(failingDispatcher{}))
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)

	err = f.engine.Execute(ctx, id, f.approve(t, id, 0, 1))
	assert.ErrorIs(t, err, ErrCallFailed)

	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, StateReady, req.State)
	assert.False(t, f.engine.IsExecution(id))
}

func TestManagementThresholdGatesSelfCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	data, err := EncodeManagementCall(SelSetDelay, SetDelayArgs{DelaySeconds: 120})
	require.NoError(t, err)
	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{{Target: walletAddr, Data: data}},
		f.signers[0].Address())
	require.NoError(t, err)

	req, err := f.engine.GetRequest(id)
	require.NoError(t, err)
	assert.Equal(t, wallet.ThresholdManagement, req.ThresholdType)

	f.clock.Advance(60 * time.Second)
	require.NoError(t, f.engine.Execute(ctx, id, f.approve(t, id, 0, 1)))
	assert.Equal(t, uint64(120), f.engine.Delay())
}

func TestTransitionLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.Propose(ctx, ModeSingleCall, []Call{transferCall(5)}, f.signers[0].Address())
	require.NoError(t, err)
	f.clock.Advance(60 * time.Second)
	require.NoError(t, f.engine.Execute(ctx, id, f.approve(t, id, 0, 1)))

	entries := f.engine.Log().ByExecution(id)
	require.Len(t, entries, 2)
	assert.Equal(t, "PROPOSED", entries[0].EntryType)
	assert.Equal(t, "EXECUTED", entries[1].EntryType)

	ok, reason := f.engine.Log().Verify()
	assert.True(t, ok, reason)
}
