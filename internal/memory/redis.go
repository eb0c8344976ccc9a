package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

const (
	sessionKeyPrefix = "session:"
	ownerKeyPrefix   = "owner_sessions:"
	defaultTTL       = 24 * time.Hour
)

// RedisStore is a Store backed by Redis. Each session is a JSON value; a
// sorted set per owner indexes sessions by update time.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Create implements Store.
func (r *RedisStore) Create(ctx context.Context, s *model.Session) error {
	s.Version = 1
	val, err := json.Marshal(s)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(s.ID), val, r.ttl)
		r.index(ctx, pipe, s)
		return nil
	})
	return err
}

// Get implements Store. Reads of active sessions refresh the key TTL.
func (r *RedisStore) Get(ctx context.Context, id string) (*model.Session, error) {
	key := r.key(id)
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s model.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, err
	}

	if s.Active {
		_ = r.client.Expire(ctx, key, r.ttl).Err()
	}
	return &s, nil
}

// Update implements Store using WATCH/MULTI/EXEC.
func (r *RedisStore) Update(ctx context.Context, s *model.Session) error {
	key := r.key(s.ID)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored model.Session
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != s.Version {
			return ErrVersionConflict
		}

		next := s.Clone()
		next.Version++
		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, r.expiration(next))
			r.index(ctx, pipe, next)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return ErrVersionConflict
			}
			return err
		}

		s.Version = next.Version
		return nil
	}, key)
}

// ListByOwner implements Store. Index entries whose session key expired are
// pruned.
func (r *RedisStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.Session, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := r.client.ZRevRange(ctx, r.ownerKey(ownerID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*model.Session, 0, len(vals))
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s model.Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}

	if len(stale) > 0 {
		_ = r.client.ZRem(ctx, r.ownerKey(ownerID), stale...).Err()
	}
	return out, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// expiration returns the key TTL for s. Tombstoned sessions never expire.
func (r *RedisStore) expiration(s *model.Session) time.Duration {
	if !s.Active {
		return 0
	}
	return r.ttl
}

func (r *RedisStore) index(ctx context.Context, pipe redis.Pipeliner, s *model.Session) {
	owner := r.ownerKey(s.OwnerID)
	pipe.ZAdd(ctx, owner, redis.Z{Score: float64(s.UpdatedAt.UnixMilli()), Member: s.ID})
	pipe.Expire(ctx, owner, r.ttl)
}

func (r *RedisStore) key(id string) string {
	return sessionKeyPrefix + id
}

func (r *RedisStore) ownerKey(ownerID string) string {
	return ownerKeyPrefix + ownerID
}
