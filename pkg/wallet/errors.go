package wallet

import "errors"

// Policy violation and structural errors. These map one-to-one onto the
// revert reasons of the on-ledger contract so callers can report them
// verbatim.
var (
	ErrInvalidAddress                 = errors.New("invalid address")
	ErrInvalidSelector                = errors.New("invalid selector")
	ErrInvalidOwner                   = errors.New("invalid owner")
	ErrInvalidPrevOwner               = errors.New("invalid previous owner")
	ErrOwnerAlreadyAdded              = errors.New("owner already added")
	ErrNotEnoughOwners                = errors.New("not enough owners")
	ErrInconsistentThresholds         = errors.New("inconsistent thresholds")
	ErrThresholdHigherThanOwnersCount = errors.New("threshold higher than owners count")
	ErrEntryAlreadyWhitelisted        = errors.New("entry already whitelisted")
	ErrEntryNotWhitelisted            = errors.New("entry not whitelisted")
)
