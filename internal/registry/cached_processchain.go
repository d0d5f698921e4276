package registry

import (
	"context"
	"time"

	wfredis "github.com/lyzr/wfcompiler/internal/redis"
)

// CachedProcessChainRegistry wraps a ProcessChainRegistry with a short-TTL
// Redis read-through cache on GetStatus, the one call the controller's
// await loop makes once per pending chain on every lookup tick. Status only
// ever moves forward (REGISTERED -> RUNNING -> SUCCESS/ERROR), so a stale
// cached read costs at most one extra poll interval before the real value
// is observed, never a wrong terminal result once it lands: SetStatus
// invalidates the entry rather than trying to keep it coherent.
type CachedProcessChainRegistry struct {
	ProcessChainRegistry
	client *wfredis.Client
	ttl    time.Duration
}

// NewCachedProcessChainRegistry wraps inner with a cache over GetStatus.
func NewCachedProcessChainRegistry(inner ProcessChainRegistry, client *wfredis.Client, ttl time.Duration) *CachedProcessChainRegistry {
	return &CachedProcessChainRegistry{ProcessChainRegistry: inner, client: client, ttl: ttl}
}

func (r *CachedProcessChainRegistry) statusKey(pcID string) string {
	return "pcstatus:" + pcID
}

func (r *CachedProcessChainRegistry) GetStatus(ctx context.Context, pcID string) (ProcessChainStatus, error) {
	if cached, err := r.client.Get(ctx, r.statusKey(pcID)); err == nil {
		return ProcessChainStatus(cached), nil
	}

	status, err := r.ProcessChainRegistry.GetStatus(ctx, pcID)
	if err != nil {
		return "", err
	}

	// A failed cache write shouldn't fail the read that already succeeded
	// against the registry of record; the next poll just misses too.
	_ = r.client.SetWithExpiry(ctx, r.statusKey(pcID), string(status), r.ttl)
	return status, nil
}

func (r *CachedProcessChainRegistry) SetStatus(ctx context.Context, pcID string, status ProcessChainStatus) error {
	if err := r.ProcessChainRegistry.SetStatus(ctx, pcID, status); err != nil {
		return err
	}
	_ = r.client.Delete(ctx, r.statusKey(pcID))
	return nil
}
