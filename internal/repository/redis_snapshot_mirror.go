package repository

import (
	"context"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/domain/repository"
	pkgcache "SigPulse/pkg/cache"
)

// RedisSnapshotMirror republishes both snapshots to Redis keys so external
// consumers can tail engine state without touching the filesystem. Mirroring
// is best effort; a miss costs nothing but staleness.
type RedisSnapshotMirror struct {
	cache pkgcache.Service
	ttl   time.Duration
}

func NewRedisSnapshotMirror(cache pkgcache.Service, ttl time.Duration) repository.SnapshotMirror {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSnapshotMirror{cache: cache, ttl: ttl}
}

func (m *RedisSnapshotMirror) Mirror(ctx context.Context, snap *models.Snapshot, compact string) error {
	if err := m.cache.Set(ctx, "snapshot:primary", snap, m.ttl); err != nil {
		return err
	}
	return m.cache.Set(ctx, "snapshot:compact", compact, m.ttl)
}
