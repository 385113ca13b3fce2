package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// ErrDuplicateApproval is returned by InsertApproval when an approval for
// the same (wallet, execution id, signer) already exists. SQL
// implementations surface it from a uniqueness constraint so the guarantee
// holds across concurrent writers and horizontally scaled coordinators.
var ErrDuplicateApproval = errors.New("duplicate approval")

// Store is the coordinator's persistence boundary. Reads may be served from
// a lagging replica; writes go to the primary.
type Store interface {
	// UpsertWallet stores or replaces a wallet policy snapshot.
	UpsertWallet(ctx context.Context, rec WalletRecord) error
	// GetWallet returns a snapshot or ErrWalletNotFound.
	GetWallet(ctx context.Context, addr wallet.Address) (WalletRecord, error)
	// ListWalletsBySigner returns every wallet whose snapshot lists the
	// signer.
	ListWalletsBySigner(ctx context.Context, signer wallet.Address) ([]WalletRecord, error)

	// UpsertPending creates the pending record or refreshes its metadata;
	// it never duplicates a (wallet, execution id) record and returns the
	// stored row.
	UpsertPending(ctx context.Context, rec PendingRecord) (PendingRecord, error)
	// GetPending returns a record or ErrRecordNotFound.
	GetPending(ctx context.Context, addr wallet.Address, executionID string) (PendingRecord, error)
	// ListPending returns a wallet's records, newest first.
	ListPending(ctx context.Context, addr wallet.Address) ([]PendingRecord, error)

	// InsertApproval appends an approval with insert-if-absent semantics;
	// ErrDuplicateApproval when the signer already has one for this id.
	InsertApproval(ctx context.Context, rec ApprovalRecord) error
	// ListApprovals returns the approvals for one execution id, oldest
	// first.
	ListApprovals(ctx context.Context, addr wallet.Address, executionID string) ([]ApprovalRecord, error)

	// UpdateProgress stores the recomputed distinct-signer count and the
	// advisory ready flag, returning the updated record.
	UpdateProgress(ctx context.Context, addr wallet.Address, executionID string, count uint, ready bool) (PendingRecord, error)
	// SetStatus moves the record to a terminal status.
	SetStatus(ctx context.Context, addr wallet.Address, executionID string, status Status, at time.Time) (PendingRecord, error)
}
