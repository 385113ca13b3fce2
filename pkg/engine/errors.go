package engine

import "errors"

// Engine error taxonomy. Policy violations are final and reported verbatim;
// ErrTimelockNotElapsed is recoverable by retrying later; ErrCallFailed
// leaves the request pending and retryable.
var (
	ErrUnauthorizedProposer     = errors.New("unauthorized proposer")
	ErrInvalidExecutionMode     = errors.New("invalid execution mode")
	ErrCallNotAllowed           = errors.New("call not allowed")
	ErrExecutionAlreadyProposed = errors.New("execution already proposed")
	ErrNotFound                 = errors.New("execution not found")
	ErrTimelockNotElapsed       = errors.New("timelock not elapsed")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrUnauthorizedSigner       = errors.New("unauthorized signer")
	ErrThresholdNotMet          = errors.New("threshold not met")
	ErrCallFailed               = errors.New("call failed")
)
