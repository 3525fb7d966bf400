package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codequest/quest-engine/internal/models"
)

const cacheKeyPrefix = "progression:"

// CachedRepository decorates a Repository with a redis read-through
// cache. Writes go to the inner repository first and then replace the
// cached snapshot (write-through); cache failures degrade to inner
// reads, never to errors.
//
// GetProgression may repopulate the cache concurrently with a write,
// so repopulation uses SetNX: it can fill an empty slot but never
// overwrite the snapshot a write just installed. Mutation paths must
// load through GetProgressionForUpdate, which skips redis entirely;
// a read-modify-write seeded from a stale cache entry would persist a
// record missing prior completions.
type CachedRepository struct {
	inner Repository
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedRepository wraps inner with a redis cache.
func NewCachedRepository(inner Repository, rdb *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{inner: inner, rdb: rdb, ttl: ttl}
}

func (r *CachedRepository) GetProgression(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	key := cacheKeyPrefix + playerID

	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p models.PlayerProgression
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		slog.Warn("dropping corrupt cache entry", "key", key)
		_ = r.rdb.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("cache read failed", "key", key, "error", err)
	}

	p, err := r.inner.GetProgression(ctx, playerID)
	if err != nil || p == nil {
		return p, err
	}

	if data, err := json.Marshal(p); err == nil {
		if err := r.rdb.SetNX(ctx, key, data, r.ttl).Err(); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return p, nil
}

// GetProgressionForUpdate bypasses redis and reads the inner store
// directly, so mutations never start from a stale cached snapshot.
func (r *CachedRepository) GetProgressionForUpdate(ctx context.Context, playerID string) (*models.PlayerProgression, error) {
	return r.inner.GetProgressionForUpdate(ctx, playerID)
}

func (r *CachedRepository) SaveProgression(ctx context.Context, p *models.PlayerProgression) error {
	if err := r.inner.SaveProgression(ctx, p); err != nil {
		return err
	}
	key := cacheKeyPrefix + p.PlayerID
	data, err := json.Marshal(p)
	if err != nil {
		_ = r.rdb.Del(ctx, key).Err()
		return nil
	}
	if err := r.rdb.Set(ctx, key, data, r.ttl).Err(); err != nil {
		slog.Warn("cache write-through failed", "player_id", p.PlayerID, "error", err)
		if err := r.rdb.Del(ctx, key).Err(); err != nil {
			slog.Warn("cache invalidation failed", "player_id", p.PlayerID, "error", err)
		}
	}
	return nil
}

func (r *CachedRepository) Ping(ctx context.Context) error {
	if err := r.inner.Ping(ctx); err != nil {
		return err
	}
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *CachedRepository) Close() error {
	if err := r.rdb.Close(); err != nil {
		slog.Warn("failed to close redis client", "error", err)
	}
	return r.inner.Close()
}
