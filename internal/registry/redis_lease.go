package registry

import (
	"context"
	"fmt"
	"time"

	wfredis "github.com/lyzr/wfcompiler/internal/redis"
	"github.com/lyzr/wfcompiler/internal/wferrors"
)

const leaseKeyPrefix = "wfcompiler:lease:"

// RedisLeaseManager grants exclusive, time-bounded leases via SETNX, the
// same idempotency-lock idiom the client wrapper already exposes.
type RedisLeaseManager struct {
	client *wfredis.Client
}

// NewRedisLeaseManager wraps a Redis client as a LeaseManager.
func NewRedisLeaseManager(client *wfredis.Client) *RedisLeaseManager {
	return &RedisLeaseManager{client: client}
}

// TryLock attempts to acquire the named lease, returning a lease-unavailable
// taxonomy error when another holder already owns it.
func (m *RedisLeaseManager) TryLock(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	key := leaseKeyPrefix + name
	acquired, err := m.client.SetNX(ctx, key, "held", ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !acquired {
		return nil, wferrors.New(wferrors.KindLeaseUnavailable, fmt.Sprintf("lease %s already held", name))
	}
	return &redisLease{client: m.client, key: key}, nil
}

type redisLease struct {
	client *wfredis.Client
	key    string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := l.client.Delete(ctx, l.key); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
