package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// CachedStore is a read-through Redis cache in front of a Store. Only the
// read projections (GetPending, ListPending) are cached; every write goes to
// the primary and drops the affected keys. Serving reads up to one TTL stale
// matches the replica-lag boundary the coordinator already documents; final
// authorization never comes from here.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore wraps primary with a Redis read cache.
func NewCachedStore(primary Store, addr, password string, db int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func cacheRecordKey(addr wallet.Address, executionID string) string {
	return "shieldwallet:pending:" + string(addr) + ":" + executionID
}

func cacheListKey(addr wallet.Address) string {
	return "shieldwallet:pending_list:" + string(addr)
}

func (c *CachedStore) GetPending(ctx context.Context, addr wallet.Address, executionID string) (PendingRecord, error) {
	key := cacheRecordKey(addr, executionID)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var rec PendingRecord
		if json.Unmarshal(raw, &rec) == nil {
			return rec, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Cache unavailable: fall through to the primary. The cache is an
		// optimization, never an availability dependency.
		_ = err
	}
	rec, err := c.Store.GetPending(ctx, addr, executionID)
	if err != nil {
		return PendingRecord{}, err
	}
	if raw, merr := json.Marshal(rec); merr == nil {
		_ = c.rdb.Set(ctx, key, raw, c.ttl).Err()
	}
	return rec, nil
}

func (c *CachedStore) ListPending(ctx context.Context, addr wallet.Address) ([]PendingRecord, error) {
	key := cacheListKey(addr)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var recs []PendingRecord
		if json.Unmarshal(raw, &recs) == nil {
			return recs, nil
		}
	}
	recs, err := c.Store.ListPending(ctx, addr)
	if err != nil {
		return nil, err
	}
	if raw, merr := json.Marshal(recs); merr == nil {
		_ = c.rdb.Set(ctx, key, raw, c.ttl).Err()
	}
	return recs, nil
}

func (c *CachedStore) invalidate(ctx context.Context, addr wallet.Address, executionID string) {
	_ = c.rdb.Del(ctx, cacheRecordKey(addr, executionID), cacheListKey(addr)).Err()
}

func (c *CachedStore) UpsertPending(ctx context.Context, rec PendingRecord) (PendingRecord, error) {
	stored, err := c.Store.UpsertPending(ctx, rec)
	if err == nil {
		c.invalidate(ctx, rec.Wallet, rec.ExecutionID)
	}
	return stored, err
}

func (c *CachedStore) InsertApproval(ctx context.Context, rec ApprovalRecord) error {
	err := c.Store.InsertApproval(ctx, rec)
	if err == nil {
		c.invalidate(ctx, rec.Wallet, rec.ExecutionID)
	}
	return err
}

func (c *CachedStore) UpdateProgress(ctx context.Context, addr wallet.Address, executionID string, count uint, ready bool) (PendingRecord, error) {
	rec, err := c.Store.UpdateProgress(ctx, addr, executionID, count, ready)
	if err == nil {
		c.invalidate(ctx, addr, executionID)
	}
	return rec, err
}

func (c *CachedStore) SetStatus(ctx context.Context, addr wallet.Address, executionID string, status Status, at time.Time) (PendingRecord, error) {
	rec, err := c.Store.SetStatus(ctx, addr, executionID, status, at)
	if err == nil {
		c.invalidate(ctx, addr, executionID)
	}
	return rec, err
}

// Close releases the Redis client.
func (c *CachedStore) Close() error {
	return c.rdb.Close()
}
