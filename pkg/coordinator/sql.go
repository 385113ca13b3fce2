package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// SQLStore implements Store on database/sql. It works against SQLite
// (modernc driver) and Postgres (lib/pq): both accept $N placeholders and
// ON CONFLICT clauses. The uniqueness constraint on (wallet, execution_id,
// signer) is what makes InsertApproval race-free without application locks,
// so the same guarantee holds when several coordinator replicas share one
// primary.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore runs migrations and returns a ready store.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate coordinator store: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			address TEXT PRIMARY KEY,
			account_name TEXT NOT NULL DEFAULT '',
			network TEXT NOT NULL DEFAULT '',
			signers TEXT NOT NULL,
			management_threshold INTEGER NOT NULL,
			execution_threshold INTEGER NOT NULL,
			revocation_threshold INTEGER NOT NULL,
			proposer TEXT NOT NULL DEFAULT '',
			timelock_delay INTEGER NOT NULL DEFAULT 0,
			creator TEXT NOT NULL DEFAULT '',
			synced_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_executions (
			record_id TEXT NOT NULL,
			wallet TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT '',
			execution_data TEXT NOT NULL DEFAULT '',
			threshold_type TEXT NOT NULL,
			proposed_at INTEGER NOT NULL,
			created_by TEXT NOT NULL,
			status TEXT NOT NULL,
			ready BOOLEAN NOT NULL DEFAULT FALSE,
			approval_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (wallet, execution_id)
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			wallet TEXT NOT NULL,
			execution_id TEXT NOT NULL,
			signer TEXT NOT NULL,
			public_key TEXT NOT NULL,
			signature TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			PRIMARY KEY (wallet, execution_id, signer)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) UpsertWallet(ctx context.Context, rec WalletRecord) error {
	signers, err := json.Marshal(rec.Signers)
	if err != nil {
		return fmt.Errorf("encode signers: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallets (address, account_name, network, signers,
			management_threshold, execution_threshold, revocation_threshold,
			proposer, timelock_delay, creator, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (address) DO UPDATE SET
			account_name = excluded.account_name,
			network = excluded.network,
			signers = excluded.signers,
			management_threshold = excluded.management_threshold,
			execution_threshold = excluded.execution_threshold,
			revocation_threshold = excluded.revocation_threshold,
			proposer = excluded.proposer,
			timelock_delay = excluded.timelock_delay,
			creator = excluded.creator,
			synced_at = excluded.synced_at`,
		rec.Address, rec.AccountName, rec.Network, string(signers),
		rec.Thresholds.Management, rec.Thresholds.Execution, rec.Thresholds.Revocation,
		rec.Proposer, rec.DelaySec, rec.Creator, rec.SyncedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const walletColumns = `address, account_name, network, signers,
	management_threshold, execution_threshold, revocation_threshold,
	proposer, timelock_delay, creator, synced_at`

func scanWallet(row interface{ Scan(...any) error }) (WalletRecord, error) {
	var rec WalletRecord
	var signers, syncedAt string
	err := row.Scan(&rec.Address, &rec.AccountName, &rec.Network, &signers,
		&rec.Thresholds.Management, &rec.Thresholds.Execution, &rec.Thresholds.Revocation,
		&rec.Proposer, &rec.DelaySec, &rec.Creator, &syncedAt)
	if err != nil {
		return WalletRecord{}, err
	}
	if err := json.Unmarshal([]byte(signers), &rec.Signers); err != nil {
		return WalletRecord{}, fmt.Errorf("decode signers: %w", err)
	}
	rec.SyncedAt, _ = time.Parse(time.RFC3339Nano, syncedAt)
	return rec, nil
}

func (s *SQLStore) GetWallet(ctx context.Context, addr wallet.Address) (WalletRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE address = $1`, addr)
	rec, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return WalletRecord{}, fmt.Errorf("%w: %s", ErrWalletNotFound, addr)
	}
	return rec, err
}

func (s *SQLStore) ListWalletsBySigner(ctx context.Context, signer wallet.Address) ([]WalletRecord, error) {
	// Snapshot signer sets are small JSON arrays; a LIKE probe narrows the
	// scan and membership is re-checked precisely after decoding.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE signers LIKE $1 ORDER BY address`,
		"%"+string(signer)+"%")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []WalletRecord
	for rows.Next() {
		rec, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		if rec.IsSigner(signer) {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertPending(ctx context.Context, rec PendingRecord) (PendingRecord, error) {
	recordID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_executions (record_id, wallet, execution_id, mode,
			execution_data, threshold_type, proposed_at, created_by, status,
			ready, approval_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, 0, $10, $11)
		ON CONFLICT (wallet, execution_id) DO UPDATE SET
			mode = excluded.mode,
			execution_data = excluded.execution_data,
			threshold_type = excluded.threshold_type,
			proposed_at = excluded.proposed_at,
			updated_at = excluded.updated_at`,
		recordID, rec.Wallet, rec.ExecutionID, rec.Mode,
		rec.ExecutionData, rec.ThresholdType.String(), rec.ProposedAt, rec.CreatedBy,
		string(StatusPending),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return PendingRecord{}, err
	}
	return s.GetPending(ctx, rec.Wallet, rec.ExecutionID)
}

const pendingColumns = `record_id, wallet, execution_id, mode, execution_data,
	threshold_type, proposed_at, created_by, status, ready, approval_count,
	created_at, updated_at`

func scanPending(row interface{ Scan(...any) error }) (PendingRecord, error) {
	var rec PendingRecord
	var thresholdType, status, createdAt, updatedAt string
	err := row.Scan(&rec.RecordID, &rec.Wallet, &rec.ExecutionID, &rec.Mode,
		&rec.ExecutionData, &thresholdType, &rec.ProposedAt, &rec.CreatedBy,
		&status, &rec.Ready, &rec.ApprovalCount, &createdAt, &updatedAt)
	if err != nil {
		return PendingRecord{}, err
	}
	tt, err := wallet.ParseThresholdType(thresholdType)
	if err != nil {
		return PendingRecord{}, err
	}
	rec.ThresholdType = tt
	rec.Status = Status(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func (s *SQLStore) GetPending(ctx context.Context, addr wallet.Address, executionID string) (PendingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_executions
		 WHERE wallet = $1 AND execution_id = $2`, addr, executionID)
	rec, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	return rec, err
}

func (s *SQLStore) ListPending(ctx context.Context, addr wallet.Address) ([]PendingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_executions
		 WHERE wallet = $1 ORDER BY created_at DESC`, addr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PendingRecord
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertApproval(ctx context.Context, rec ApprovalRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (wallet, execution_id, signer, public_key, signature, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet, execution_id, signer) DO NOTHING`,
		rec.Wallet, rec.ExecutionID, rec.Signer, rec.PublicKey, rec.Signature,
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateApproval, rec.Signer)
	}
	return nil
}

func (s *SQLStore) ListApprovals(ctx context.Context, addr wallet.Address, executionID string) ([]ApprovalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, execution_id, signer, public_key, signature, submitted_at
		FROM approvals WHERE wallet = $1 AND execution_id = $2
		ORDER BY submitted_at`, addr, executionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ApprovalRecord
	for rows.Next() {
		var rec ApprovalRecord
		var submittedAt string
		if err := rows.Scan(&rec.Wallet, &rec.ExecutionID, &rec.Signer,
			&rec.PublicKey, &rec.Signature, &submittedAt); err != nil {
			return nil, err
		}
		rec.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateProgress(ctx context.Context, addr wallet.Address, executionID string, count uint, ready bool) (PendingRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_executions SET approval_count = $1, ready = $2
		WHERE wallet = $3 AND execution_id = $4`,
		count, ready, addr, executionID)
	if err != nil {
		return PendingRecord{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	return s.GetPending(ctx, addr, executionID)
}

func (s *SQLStore) SetStatus(ctx context.Context, addr wallet.Address, executionID string, status Status, at time.Time) (PendingRecord, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_executions SET status = $1, updated_at = $2
		WHERE wallet = $3 AND execution_id = $4`,
		string(status), at.UTC().Format(time.RFC3339Nano), addr, executionID)
	if err != nil {
		return PendingRecord{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return PendingRecord{}, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, addr, executionID)
	}
	return s.GetPending(ctx, addr, executionID)
}
