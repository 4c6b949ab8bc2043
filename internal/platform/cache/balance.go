// Package cache provides the Redis-backed read cache for patient balances.
// getBalance is an eventually-consistent read, so a short TTL plus
// invalidation on every balance-affecting commit is sufficient.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const balanceTTL = 30 * time.Second

type cachedBalance struct {
	Total          decimal.Decimal `json:"total"`
	ActiveDeposits int             `json:"active_deposits"`
}

// BalanceCache caches the summed ACTIVE deposit balance per patient.
type BalanceCache struct {
	client *redis.Client
}

// NewBalanceCache parses the redis URL and returns a connected cache.
func NewBalanceCache(redisURL string) (*BalanceCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &BalanceCache{client: redis.NewClient(opts)}, nil
}

func balanceKey(patientID string) string {
	return "ledger:balance:" + patientID
}

// Get returns the cached balance and active deposit count for a patient, or
// ok=false on miss or any redis error. Cache errors never fail a balance read.
func (c *BalanceCache) Get(ctx context.Context, patientID string) (decimal.Decimal, int, bool) {
	val, err := c.client.Get(ctx, balanceKey(patientID)).Bytes()
	if err != nil {
		return decimal.Zero, 0, false
	}
	var cb cachedBalance
	if err := json.Unmarshal(val, &cb); err != nil {
		return decimal.Zero, 0, false
	}
	return cb.Total, cb.ActiveDeposits, true
}

// Set stores a patient's balance with the standard TTL.
func (c *BalanceCache) Set(ctx context.Context, patientID string, total decimal.Decimal, activeDeposits int) {
	data, err := json.Marshal(cachedBalance{Total: total, ActiveDeposits: activeDeposits})
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, balanceKey(patientID), data, balanceTTL).Err()
}

// Invalidate drops the cached balance after a balance-affecting commit.
func (c *BalanceCache) Invalidate(ctx context.Context, patientID string) {
	_ = c.client.Del(ctx, balanceKey(patientID)).Err()
}

// Close releases the underlying redis client.
func (c *BalanceCache) Close() error {
	return c.client.Close()
}
