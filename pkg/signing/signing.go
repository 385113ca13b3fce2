// Package signing implements owner approval signatures: ed25519 over the raw
// 32 bytes of an execution identifier. A signer's on-wallet identity is the
// address derived from its public key, so an approval carries the public key
// alongside the signature and verifiers re-derive the address themselves.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/canonical"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// Approval is one owner's attestation over an execution identifier.
type Approval struct {
	Signer      wallet.Address `json:"signer"`
	PublicKey   string         `json:"public_key"` // hex, 32 bytes
	Signature   string         `json:"signature"`  // hex, 64 bytes
	SubmittedAt time.Time      `json:"submitted_at,omitempty"`
}

// Signer holds an ed25519 key pair for one owner.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh key pair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// NewSignerFromSeed rebuilds a signer from a 32-byte hex seed.
func NewSignerFromSeed(seedHex string) (*Signer, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Seed returns the hex seed of the private key.
func (s *Signer) Seed() string {
	return hex.EncodeToString(s.priv.Seed())
}

// PublicKey returns the hex public key.
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// Address returns the wallet identity for this key pair.
func (s *Signer) Address() wallet.Address {
	return AddressFromPublicKey(s.pub)
}

// Approve signs the raw bytes of the given execution identifier.
func (s *Signer) Approve(executionID string) (Approval, error) {
	raw, err := canonical.DecodeHash(executionID)
	if err != nil {
		return Approval{}, err
	}
	sig := ed25519.Sign(s.priv, raw)
	return Approval{
		Signer:    s.Address(),
		PublicKey: s.PublicKey(),
		Signature: hex.EncodeToString(sig),
	}, nil
}

// AddressFromPublicKey derives the 20-byte address: the trailing 20 bytes of
// the Keccak-256 digest of the public key.
func AddressFromPublicKey(pub ed25519.PublicKey) wallet.Address {
	digest := canonical.Keccak256Hex(pub) // 0x + 64 hex chars
	return wallet.NormalizeAddress("0x" + digest[len(digest)-40:])
}

// VerifyApproval checks that the approval's public key matches its claimed
// signer address and that the signature covers exactly the raw bytes of
// executionID. It does not check owner membership; that is the engine's job.
func VerifyApproval(a Approval, executionID string) error {
	pubRaw, err := hex.DecodeString(a.PublicKey)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubRaw))
	}
	pub := ed25519.PublicKey(pubRaw)
	if AddressFromPublicKey(pub) != wallet.NormalizeAddress(string(a.Signer)) {
		return fmt.Errorf("public key does not match signer %s", a.Signer)
	}
	sig, err := hex.DecodeString(a.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	msg, err := canonical.DecodeHash(executionID)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, msg, sig) {
		return fmt.Errorf("signature verification failed for %s", a.Signer)
	}
	return nil
}
