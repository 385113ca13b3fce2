package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeOwnerPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy([]Address{addr(0x10), addr(0x20), addr(0x30)},
		Thresholds{Management: 2, Execution: 2, Revocation: 1}, "", 0, nil)
	require.NoError(t, err)
	return p
}

func TestAddOwnerWithThreshold(t *testing.T) {
	p := threeOwnerPolicy(t)
	newT := Thresholds{Management: 3, Execution: 2, Revocation: 1}
	require.NoError(t, p.AddOwnerWithThreshold(addr(0x40), newT))

	assert.Equal(t, []Address{addr(0x10), addr(0x20), addr(0x30), addr(0x40)}, p.Owners())
	assert.Equal(t, newT, p.Thresholds())
}

func TestAddOwnerRejections(t *testing.T) {
	p := threeOwnerPolicy(t)
	keep := p.Thresholds()

	assert.ErrorIs(t, p.AddOwnerWithThreshold(addr(0x10), keep), ErrOwnerAlreadyAdded)
	assert.ErrorIs(t, p.AddOwnerWithThreshold(ZeroAddress, keep), ErrInvalidOwner)
	assert.ErrorIs(t, p.AddOwnerWithThreshold(sentinelOwner, keep), ErrInvalidOwner)
	assert.ErrorIs(t,
		p.AddOwnerWithThreshold(addr(0x40), Thresholds{Management: 5, Execution: 2, Revocation: 1}),
		ErrThresholdHigherThanOwnersCount)
	// Failed adds leave the policy untouched.
	assert.Equal(t, uint(3), p.OwnerCount())
}

func TestRemoveOwnerWithThreshold(t *testing.T) {
	p := threeOwnerPolicy(t)
	newT := Thresholds{Management: 2, Execution: 2, Revocation: 1}
	require.NoError(t, p.RemoveOwnerWithThreshold(addr(0x10), addr(0x20), newT))

	assert.Equal(t, []Address{addr(0x10), addr(0x30)}, p.Owners())
	assert.False(t, p.IsOwner(addr(0x20)))
}

func TestRemoveOwnerHead(t *testing.T) {
	p := threeOwnerPolicy(t)
	// The sentinel precedes the head owner.
	require.NoError(t, p.RemoveOwnerWithThreshold(sentinelOwner, addr(0x10),
		Thresholds{Management: 2, Execution: 2, Revocation: 1}))
	assert.Equal(t, []Address{addr(0x20), addr(0x30)}, p.Owners())
}

func TestRemoveOwnerRejections(t *testing.T) {
	p := threeOwnerPolicy(t)
	keep := Thresholds{Management: 2, Execution: 2, Revocation: 1}

	t.Run("wrong prev owner", func(t *testing.T) {
		assert.ErrorIs(t, p.RemoveOwnerWithThreshold(addr(0x10), addr(0x30), keep), ErrInvalidPrevOwner)
	})
	t.Run("unknown owner", func(t *testing.T) {
		assert.ErrorIs(t, p.RemoveOwnerWithThreshold(addr(0x10), addr(0x99), keep), ErrInvalidOwner)
	})
	t.Run("last owner", func(t *testing.T) {
		single, err := NewPolicy([]Address{addr(0x10)}, testThresholds(), "", 0, nil)
		require.NoError(t, err)
		assert.ErrorIs(t,
			single.RemoveOwnerWithThreshold(sentinelOwner, addr(0x10), testThresholds()),
			ErrNotEnoughOwners)
	})
}

func TestSwapOwner(t *testing.T) {
	p := threeOwnerPolicy(t)
	require.NoError(t, p.SwapOwner(addr(0x10), addr(0x20), addr(0x40)))

	assert.Equal(t, []Address{addr(0x10), addr(0x40), addr(0x30)}, p.Owners())
	assert.False(t, p.IsOwner(addr(0x20)))
	// Thresholds unchanged by a swap.
	assert.Equal(t, Thresholds{Management: 2, Execution: 2, Revocation: 1}, p.Thresholds())
}

func TestSwapOwnerRejections(t *testing.T) {
	p := threeOwnerPolicy(t)

	assert.ErrorIs(t, p.SwapOwner(addr(0x10), addr(0x20), addr(0x30)), ErrOwnerAlreadyAdded)
	assert.ErrorIs(t, p.SwapOwner(addr(0x10), addr(0x99), addr(0x40)), ErrInvalidOwner)
	assert.ErrorIs(t, p.SwapOwner(addr(0x30), addr(0x20), addr(0x40)), ErrInvalidPrevOwner)
	assert.ErrorIs(t, p.SwapOwner(addr(0x10), addr(0x20), ZeroAddress), ErrInvalidOwner)
}

func TestChangeThresholds(t *testing.T) {
	p := threeOwnerPolicy(t)
	newT := Thresholds{Management: 3, Execution: 3, Revocation: 2}
	require.NoError(t, p.ChangeThresholds(newT))
	assert.Equal(t, newT, p.Thresholds())

	assert.ErrorIs(t, p.ChangeThresholds(Thresholds{Management: 4, Execution: 1, Revocation: 1}),
		ErrThresholdHigherThanOwnersCount)
	assert.ErrorIs(t, p.ChangeThresholds(Thresholds{Management: 1, Execution: 0, Revocation: 1}),
		ErrInconsistentThresholds)
}

func TestSetProposer(t *testing.T) {
	p := threeOwnerPolicy(t)
	require.NoError(t, p.SetProposer(addr(0x77)))
	assert.Equal(t, addr(0x77), p.Proposer())
	assert.True(t, p.CanPropose(addr(0x77)))

	// Zero address clears the designation.
	require.NoError(t, p.SetProposer(ZeroAddress))
	assert.Equal(t, Address(""), p.Proposer())
	assert.False(t, p.CanPropose(addr(0x77)))
}

func TestSetDelay(t *testing.T) {
	p := threeOwnerPolicy(t)
	require.NoError(t, p.SetDelay(3600))
	assert.Equal(t, uint64(3600), p.Delay())
}

func TestWhitelistEntryLifecycle(t *testing.T) {
	p := threeOwnerPolicy(t)
	entry := WhitelistEntry{Target: addr(0xaa), Selector: "0xdeadbeef", MaxValue: 100}

	require.NoError(t, p.AddWhitelistEntry(entry))
	assert.ErrorIs(t, p.AddWhitelistEntry(entry), ErrEntryAlreadyWhitelisted)

	require.NoError(t, p.DeleteWhitelistEntry(entry.Target, entry.Selector))
	assert.ErrorIs(t, p.DeleteWhitelistEntry(entry.Target, entry.Selector), ErrEntryNotWhitelisted)
}

func TestWhitelistZeroTargetAllowed(t *testing.T) {
	p := threeOwnerPolicy(t)
	// The zero target is the management surface.
	require.NoError(t, p.AddWhitelistEntry(WhitelistEntry{Target: ZeroAddress, Selector: "0x878df11b"}))
	_, ok := p.Whitelist(ZeroAddress, "0x878df11b")
	assert.True(t, ok)
}

func TestWhitelistRejectsBadEntries(t *testing.T) {
	p := threeOwnerPolicy(t)
	assert.ErrorIs(t, p.AddWhitelistEntry(WhitelistEntry{Target: "0xzz", Selector: "0xdeadbeef"}), ErrInvalidAddress)
	assert.ErrorIs(t, p.AddWhitelistEntry(WhitelistEntry{Target: addr(0xaa), Selector: "0xnope"}), ErrInvalidSelector)
}
