// Package lockout tracks repeated declined payments per card and
// temporarily blocks further payment attempts, guarding against a card
// hammering the payment path. Liveness failures are not counted.
//
// Built around a CheckLockout/RecordFailedAttempt key scheme, keyed on
// card uid instead of a tenant+email pair.
package lockout

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultThreshold = 5
	DefaultTTL       = 15 * time.Minute
)

type Manager struct {
	client    *redis.Client
	threshold int64
	ttl       time.Duration
}

func NewManager(client *redis.Client, threshold int, ttl time.Duration) *Manager {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{client: client, threshold: int64(threshold), ttl: ttl}
}

// IsLockedOut reports whether cardUID is currently locked out of payment
// attempts.
func (m *Manager) IsLockedOut(ctx context.Context, cardUID string) (bool, error) {
	val, err := m.client.Get(ctx, lockKey(cardUID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "locked", nil
}

// RecordFailure increments the failure counter for cardUID and locks it
// out once threshold is reached.
func (m *Manager) RecordFailure(ctx context.Context, cardUID string) error {
	key := countKey(cardUID)
	count, err := m.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		m.client.Expire(ctx, key, m.ttl)
	}
	if count >= m.threshold {
		m.client.Set(ctx, lockKey(cardUID), "locked", m.ttl)
		m.client.Del(ctx, key)
	}
	return nil
}

// ClearFailures resets the failure counter for cardUID, called after a
// successful payment.
func (m *Manager) ClearFailures(ctx context.Context, cardUID string) error {
	return m.client.Del(ctx, countKey(cardUID)).Err()
}

func lockKey(cardUID string) string  { return fmt.Sprintf("canteen:lockout:%s", cardUID) }
func countKey(cardUID string) string { return fmt.Sprintf("canteen:lockout_count:%s", cardUID) }
