package wallet

import "fmt"

// Manager operations mutate the policy. Every one of them is reachable only
// as a management self-call routed through the execution engine, so the
// mutation happens inside an already-authorized atomic transition. The
// methods validate structure; they never count signatures themselves.

// AddOwnerWithThreshold appends a new owner and installs a full replacement
// threshold set sized for the grown owner list.
func (p *Policy) AddOwnerWithThreshold(owner Address, t Thresholds) error {
	owner = NormalizeAddress(string(owner))
	if err := owner.Validate(); err != nil {
		return err
	}
	if owner.IsZero() || owner == sentinelOwner {
		return fmt.Errorf("%w: reserved address %s", ErrInvalidOwner, owner)
	}
	if p.IsOwner(owner) {
		return fmt.Errorf("%w: %s", ErrOwnerAlreadyAdded, owner)
	}
	if err := validateThresholds(t, p.ownerCount+1); err != nil {
		return err
	}
	// Append at the tail to keep listing order stable.
	last := sentinelOwner
	for cur := p.next[sentinelOwner]; cur != sentinelOwner; cur = p.next[cur] {
		last = cur
	}
	p.next[last] = owner
	p.next[owner] = sentinelOwner
	p.ownerCount++
	p.thresholds = t
	return nil
}

// RemoveOwnerWithThreshold unlinks an owner. prevOwner must be the owner
// immediately preceding it in the list (the sentinel for the head), matching
// the linked-list discipline of the on-ledger contract.
func (p *Policy) RemoveOwnerWithThreshold(prevOwner, owner Address, t Thresholds) error {
	owner = NormalizeAddress(string(owner))
	prevOwner = NormalizeAddress(string(prevOwner))
	if !p.IsOwner(owner) {
		return fmt.Errorf("%w: %s", ErrInvalidOwner, owner)
	}
	if prevOwner != sentinelOwner && !p.IsOwner(prevOwner) {
		return fmt.Errorf("%w: %s", ErrInvalidPrevOwner, prevOwner)
	}
	if p.next[prevOwner] != owner {
		return fmt.Errorf("%w: %s does not precede %s", ErrInvalidPrevOwner, prevOwner, owner)
	}
	if p.ownerCount == 1 {
		return fmt.Errorf("%w: cannot remove the last owner", ErrNotEnoughOwners)
	}
	if err := validateThresholds(t, p.ownerCount-1); err != nil {
		return err
	}
	p.next[prevOwner] = p.next[owner]
	delete(p.next, owner)
	p.ownerCount--
	p.thresholds = t
	return nil
}

// SwapOwner replaces oldOwner with newOwner in place, keeping list order and
// all thresholds unchanged.
func (p *Policy) SwapOwner(prevOwner, oldOwner, newOwner Address) error {
	oldOwner = NormalizeAddress(string(oldOwner))
	newOwner = NormalizeAddress(string(newOwner))
	prevOwner = NormalizeAddress(string(prevOwner))
	if err := newOwner.Validate(); err != nil {
		return err
	}
	if newOwner.IsZero() || newOwner == sentinelOwner {
		return fmt.Errorf("%w: reserved address %s", ErrInvalidOwner, newOwner)
	}
	if p.IsOwner(newOwner) {
		return fmt.Errorf("%w: %s", ErrOwnerAlreadyAdded, newOwner)
	}
	if !p.IsOwner(oldOwner) {
		return fmt.Errorf("%w: %s", ErrInvalidOwner, oldOwner)
	}
	if prevOwner != sentinelOwner && !p.IsOwner(prevOwner) {
		return fmt.Errorf("%w: %s", ErrInvalidPrevOwner, prevOwner)
	}
	if p.next[prevOwner] != oldOwner {
		return fmt.Errorf("%w: %s does not precede %s", ErrInvalidPrevOwner, prevOwner, oldOwner)
	}
	p.next[prevOwner] = newOwner
	p.next[newOwner] = p.next[oldOwner]
	delete(p.next, oldOwner)
	return nil
}

// ChangeThresholds installs a replacement threshold set for the current
// owner count.
func (p *Policy) ChangeThresholds(t Thresholds) error {
	if err := validateThresholds(t, p.ownerCount); err != nil {
		return err
	}
	p.thresholds = t
	return nil
}

// SetProposer designates the non-owner identity allowed to propose. The zero
// address clears the designation.
func (p *Policy) SetProposer(a Address) error {
	a = NormalizeAddress(string(a))
	if a.IsZero() {
		p.proposer = ""
		return nil
	}
	if err := a.Validate(); err != nil {
		return err
	}
	p.proposer = a
	return nil
}

// SetDelay changes the timelock delay. The delay is read at execution time,
// so a new value applies to every not-yet-executed request.
func (p *Policy) SetDelay(seconds uint64) error {
	p.delay = seconds
	return nil
}

// AddWhitelistEntry permits a new (target, selector) pair.
func (p *Policy) AddWhitelistEntry(e WhitelistEntry) error {
	return p.addWhitelistEntry(e)
}

func (p *Policy) addWhitelistEntry(e WhitelistEntry) error {
	e.Target = NormalizeAddress(string(e.Target))
	e.Selector = NormalizeSelector(string(e.Selector))
	// The zero target is the wallet's own management surface and is the one
	// address exempt from the non-zero rule.
	if !e.Target.IsZero() {
		if err := e.Target.Validate(); err != nil {
			return err
		}
	}
	if err := e.Selector.Validate(); err != nil {
		return err
	}
	k := whitelistKey(e.Target, e.Selector)
	if _, ok := p.whitelist[k]; ok {
		return fmt.Errorf("%w: %s %s", ErrEntryAlreadyWhitelisted, e.Target, e.Selector)
	}
	p.whitelist[k] = e
	return nil
}

// DeleteWhitelistEntry removes a (target, selector) pair.
func (p *Policy) DeleteWhitelistEntry(target Address, selector Selector) error {
	k := whitelistKey(NormalizeAddress(string(target)), NormalizeSelector(string(selector)))
	if _, ok := p.whitelist[k]; !ok {
		return fmt.Errorf("%w: %s %s", ErrEntryNotWhitelisted, target, selector)
	}
	delete(p.whitelist, k)
	return nil
}
