// Package canonical provides RFC 8785 (JSON Canonicalization Scheme)
// serialization and Keccak-256 digests. Execution identifiers are derived
// from the canonical form, so any client can reproduce an id byte-for-byte
// before submitting a proposal.
package canonical

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/sha3"
)

// JCS returns the RFC 8785 canonical JSON representation of v: map keys
// sorted lexicographically by UTF-8 bytes, no HTML escaping, stable number
// formatting.
func JCS(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// Keccak256Hex returns the hex Keccak-256 digest of raw bytes, 0x prefixed.
// Keccak (the pre-NIST-padding SHA-3 variant) is what the settlement ledger
// uses, so ids computed here match the on-ledger ones.
func Keccak256Hex(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Hash returns the 0x-prefixed Keccak-256 digest of the canonical JSON form
// of v.
func Hash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return Keccak256Hex(b), nil
}

// DecodeHash converts a 0x-prefixed hex digest back to its raw 32 bytes.
// Signatures are made over these exact bytes, never over the hex string.
func DecodeHash(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed hash %q: %w", s, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	return raw, nil
}
