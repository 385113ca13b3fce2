// Package wallet holds the per-wallet policy: the owner set, the three
// approval thresholds, the designated proposer, the timelock delay and the
// whitelist of permitted call targets.
//
// The policy is mutated only through the Manager operations in manager.go,
// which the execution engine routes through its own authorization pipeline
// as management self-calls.
package wallet

import (
	"fmt"
	"regexp"
	"strings"
)

// Address is a 20-byte account identifier, hex encoded with a 0x prefix.
// Addresses are normalized to lowercase so that casing differences can never
// produce two records for the same identity.
type Address string

// ZeroAddress is the reserved null address. Whitelist entries for management
// self-calls are registered under it.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// sentinelOwner terminates the owner linked list.
const sentinelOwner Address = "0x0000000000000000000000000000000000000001"

var addressRx = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// NormalizeAddress lowercases a hex address. Validation is separate; this
// only canonicalizes casing.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// Validate checks the address is well formed (0x + 40 lowercase hex digits).
func (a Address) Validate() error {
	if !addressRx.MatchString(string(a)) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, a)
	}
	return nil
}

// IsZero reports whether the address is the reserved null address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Selector identifies a callable function: the leading 4 bytes of call data,
// hex encoded with a 0x prefix.
type Selector string

var selectorRx = regexp.MustCompile(`^0x[0-9a-f]{8}$`)

// NormalizeSelector lowercases a hex selector.
func NormalizeSelector(s string) Selector {
	return Selector(strings.ToLower(strings.TrimSpace(s)))
}

// Validate checks the selector is well formed (0x + 8 lowercase hex digits).
func (s Selector) Validate() error {
	if !selectorRx.MatchString(string(s)) {
		return fmt.Errorf("%w: %q", ErrInvalidSelector, s)
	}
	return nil
}

// ThresholdType selects which of the three thresholds gates an action.
type ThresholdType int

const (
	ThresholdExecution ThresholdType = iota
	ThresholdManagement
	ThresholdRevocation
)

// String implements fmt.Stringer for ThresholdType.
func (t ThresholdType) String() string {
	switch t {
	case ThresholdExecution:
		return "EXECUTION"
	case ThresholdManagement:
		return "MANAGEMENT"
	case ThresholdRevocation:
		return "REVOCATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(t))
	}
}

// ParseThresholdType is the inverse of String.
func ParseThresholdType(s string) (ThresholdType, error) {
	switch strings.ToUpper(s) {
	case "EXECUTION":
		return ThresholdExecution, nil
	case "MANAGEMENT":
		return ThresholdManagement, nil
	case "REVOCATION":
		return ThresholdRevocation, nil
	}
	return 0, fmt.Errorf("unknown threshold type %q", s)
}

// WhitelistEntry permits calls to one (target, selector) pair. MaxValue
// bounds the value a single call may carry; zero means the call must carry
// no value at all.
type WhitelistEntry struct {
	Target   Address  `json:"target" yaml:"target"`
	Selector Selector `json:"selector" yaml:"selector"`
	MaxValue uint64   `json:"max_value" yaml:"max_value"`
}

func whitelistKey(target Address, selector Selector) string {
	return string(target) + ":" + string(selector)
}

// Thresholds groups the three threshold values.
type Thresholds struct {
	Management uint `json:"management" yaml:"management"`
	Execution  uint `json:"execution" yaml:"execution"`
	Revocation uint `json:"revocation" yaml:"revocation"`
}

// Policy is the full configuration of one wallet. It is not safe for
// concurrent use; the engine serializes access and hands out clones.
type Policy struct {
	// owners is a sentinel-terminated linked list: next[sentinel] is the
	// first owner, next[last] is the sentinel. The list preserves insertion
	// order, which gives deterministic iteration for Owners().
	next       map[Address]Address
	ownerCount uint

	thresholds Thresholds
	proposer   Address
	delay      uint64 // seconds
	whitelist  map[string]WhitelistEntry
}

// NewPolicy builds a validated policy. The owner slice must be non-empty and
// free of duplicates and zero addresses.
func NewPolicy(owners []Address, t Thresholds, proposer Address, delaySeconds uint64, entries []WhitelistEntry) (*Policy, error) {
	p := &Policy{
		next:      map[Address]Address{sentinelOwner: sentinelOwner},
		whitelist: make(map[string]WhitelistEntry),
		delay:     delaySeconds,
	}
	prev := sentinelOwner
	for _, o := range owners {
		o = NormalizeAddress(string(o))
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if o == sentinelOwner || o.IsZero() {
			return nil, fmt.Errorf("%w: reserved address %s", ErrInvalidOwner, o)
		}
		if _, dup := p.next[o]; dup {
			return nil, fmt.Errorf("%w: %s", ErrOwnerAlreadyAdded, o)
		}
		p.next[prev] = o
		p.next[o] = sentinelOwner
		prev = o
		p.ownerCount++
	}
	if p.ownerCount == 0 {
		return nil, fmt.Errorf("%w: no owners", ErrNotEnoughOwners)
	}
	if err := validateThresholds(t, p.ownerCount); err != nil {
		return nil, err
	}
	p.thresholds = t
	if proposer != "" {
		proposer = NormalizeAddress(string(proposer))
		if err := proposer.Validate(); err != nil {
			return nil, err
		}
	}
	p.proposer = proposer
	for _, e := range entries {
		if err := p.addWhitelistEntry(e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// validateThresholds enforces 1 <= threshold <= ownerCount for each of the
// three threshold types.
func validateThresholds(t Thresholds, owners uint) error {
	for _, v := range []struct {
		name string
		val  uint
	}{
		{"management", t.Management},
		{"execution", t.Execution},
		{"revocation", t.Revocation},
	} {
		if v.val < 1 {
			return fmt.Errorf("%w: %s threshold must be at least 1", ErrInconsistentThresholds, v.name)
		}
		if v.val > owners {
			return fmt.Errorf("%w: %s threshold %d exceeds owner count %d",
				ErrThresholdHigherThanOwnersCount, v.name, v.val, owners)
		}
	}
	return nil
}

// Owners returns the owner set in stable (insertion) order.
func (p *Policy) Owners() []Address {
	out := make([]Address, 0, p.ownerCount)
	for cur := p.next[sentinelOwner]; cur != sentinelOwner; cur = p.next[cur] {
		out = append(out, cur)
	}
	return out
}

// IsOwner reports membership of the current owner set.
func (p *Policy) IsOwner(a Address) bool {
	a = NormalizeAddress(string(a))
	if a == sentinelOwner {
		return false
	}
	_, ok := p.next[a]
	return ok
}

// OwnerCount returns the number of owners.
func (p *Policy) OwnerCount() uint { return p.ownerCount }

// Thresholds returns the current threshold values.
func (p *Policy) Thresholds() Thresholds { return p.thresholds }

// Threshold returns the value gating the given threshold type.
func (p *Policy) Threshold(t ThresholdType) uint {
	switch t {
	case ThresholdManagement:
		return p.thresholds.Management
	case ThresholdRevocation:
		return p.thresholds.Revocation
	default:
		return p.thresholds.Execution
	}
}

// Proposer returns the designated proposer address (may be empty).
func (p *Policy) Proposer() Address { return p.proposer }

// Delay returns the timelock delay in seconds.
func (p *Policy) Delay() uint64 { return p.delay }

// CanPropose reports whether the identity may propose executions: any owner,
// plus the designated proposer.
func (p *Policy) CanPropose(a Address) bool {
	a = NormalizeAddress(string(a))
	return p.IsOwner(a) || (p.proposer != "" && a == p.proposer)
}

// Whitelist looks up the entry for (target, selector). The second return is
// false when the pair is not allowed.
func (p *Policy) Whitelist(target Address, selector Selector) (WhitelistEntry, bool) {
	e, ok := p.whitelist[whitelistKey(NormalizeAddress(string(target)), NormalizeSelector(string(selector)))]
	return e, ok
}

// WhitelistEntries returns all entries. Order is not specified.
func (p *Policy) WhitelistEntries() []WhitelistEntry {
	out := make([]WhitelistEntry, 0, len(p.whitelist))
	for _, e := range p.whitelist {
		out = append(out, e)
	}
	return out
}

// Clone deep-copies the policy. The engine mutates a clone during execution
// so a failed batch leaves the live policy untouched.
func (p *Policy) Clone() *Policy {
	c := &Policy{
		next:       make(map[Address]Address, len(p.next)),
		ownerCount: p.ownerCount,
		thresholds: p.thresholds,
		proposer:   p.proposer,
		delay:      p.delay,
		whitelist:  make(map[string]WhitelistEntry, len(p.whitelist)),
	}
	for k, v := range p.next {
		c.next[k] = v
	}
	for k, v := range p.whitelist {
		c.whitelist[k] = v
	}
	return c
}

// Validate re-checks the standing policy invariants.
func (p *Policy) Validate() error {
	if p.ownerCount == 0 {
		return fmt.Errorf("%w: no owners", ErrNotEnoughOwners)
	}
	return validateThresholds(p.thresholds, p.ownerCount)
}
