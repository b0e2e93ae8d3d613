// Package cache holds the read-through balance snapshot. The snapshot is a
// display hint only; sufficiency checks always recompute from the ledger.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const snapshotTTL = 5 * time.Minute

func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  1 * time.Second,
		ReadTimeout:  400 * time.Millisecond,
		WriteTimeout: 400 * time.Millisecond,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// BalanceSnapshot caches derived balances per account. A nil snapshot is
// valid and disables caching, for deployments without Redis.
type BalanceSnapshot struct {
	rdb *redis.Client
}

func NewBalanceSnapshot(rdb *redis.Client) *BalanceSnapshot {
	return &BalanceSnapshot{rdb: rdb}
}

func key(accountID int64) string {
	return fmt.Sprintf("wallet:balance:%d", accountID)
}

// Get returns the cached balance and whether it was present.
func (s *BalanceSnapshot) Get(ctx context.Context, accountID int64) (decimal.Decimal, bool) {
	if s == nil || s.rdb == nil {
		return decimal.Zero, false
	}

	raw, err := s.rdb.Get(ctx, key(accountID)).Result()
	if err != nil {
		return decimal.Zero, false
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return bal, true
}

// Set stores a freshly derived balance. Failures are swallowed; the
// snapshot must never affect correctness.
func (s *BalanceSnapshot) Set(ctx context.Context, accountID int64, balance decimal.Decimal) {
	if s == nil || s.rdb == nil {
		return
	}
	_ = s.rdb.Set(ctx, key(accountID), balance.String(), snapshotTTL).Err()
}

// Invalidate drops the snapshot after a ledger mutation.
func (s *BalanceSnapshot) Invalidate(ctx context.Context, accountIDs ...int64) {
	if s == nil || s.rdb == nil {
		return
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = key(id)
	}
	_ = s.rdb.Del(ctx, keys...).Err()
}
