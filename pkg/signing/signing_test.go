package signing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldwallet/shieldwallet/pkg/canonical"
)

func TestSignerDerivation(t *testing.T) {
	s, err := NewSigner()
	require.NoError(t, err)

	addr := s.Address()
	require.NoError(t, addr.Validate())
	assert.True(t, strings.HasPrefix(string(addr), "0x"))
	assert.Len(t, s.PublicKey(), 64)
	assert.Len(t, s.Seed(), 64)
}

func TestSignerSeedRoundTrip(t *testing.T) {
	s1, err := NewSigner()
	require.NoError(t, err)
	s2, err := NewSignerFromSeed(s1.Seed())
	require.NoError(t, err)

	assert.Equal(t, s1.Address(), s2.Address())
	assert.Equal(t, s1.PublicKey(), s2.PublicKey())
}

func TestNewSignerFromSeedRejectsBadInput(t *testing.T) {
	_, err := NewSignerFromSeed("not-hex")
	assert.Error(t, err)
	_, err = NewSignerFromSeed("abcd")
	assert.Error(t, err)
}

func TestApproveAndVerify(t *testing.T) {
	s, err := NewSigner()
	require.NoError(t, err)
	executionID := canonical.Keccak256Hex([]byte("proposal"))

	approval, err := s.Approve(executionID)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), approval.Signer)
	assert.NoError(t, VerifyApproval(approval, executionID))
}

func TestVerifyRejectsWrongExecutionID(t *testing.T) {
	s, err := NewSigner()
	require.NoError(t, err)
	approval, err := s.Approve(canonical.Keccak256Hex([]byte("one")))
	require.NoError(t, err)

	assert.Error(t, VerifyApproval(approval, canonical.Keccak256Hex([]byte("two"))))
}

func TestVerifyRejectsMismatchedSigner(t *testing.T) {
	s1, err := NewSigner()
	require.NoError(t, err)
	s2, err := NewSigner()
	require.NoError(t, err)

	executionID := canonical.Keccak256Hex([]byte("proposal"))
	approval, err := s1.Approve(executionID)
	require.NoError(t, err)

	// Claiming another owner's address must fail the key-to-address check.
	approval.Signer = s2.Address()
	assert.Error(t, VerifyApproval(approval, executionID))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	s, err := NewSigner()
	require.NoError(t, err)
	executionID := canonical.Keccak256Hex([]byte("proposal"))
	approval, err := s.Approve(executionID)
	require.NoError(t, err)

	sig := []byte(approval.Signature)
	if sig[0] == 'f' {
		sig[0] = '0'
	} else {
		sig[0] = 'f'
	}
	approval.Signature = string(sig)
	assert.Error(t, VerifyApproval(approval, executionID))
}

func TestVerifyRejectsMalformedFields(t *testing.T) {
	executionID := canonical.Keccak256Hex([]byte("proposal"))
	s, err := NewSigner()
	require.NoError(t, err)
	good, err := s.Approve(executionID)
	require.NoError(t, err)

	bad := good
	bad.PublicKey = "zz"
	assert.Error(t, VerifyApproval(bad, executionID))

	bad = good
	bad.PublicKey = "abcd"
	assert.Error(t, VerifyApproval(bad, executionID))

	bad = good
	bad.Signature = "zz"
	assert.Error(t, VerifyApproval(bad, executionID))

	assert.Error(t, VerifyApproval(good, "0x1234"))
}
