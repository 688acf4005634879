package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-based implementation of Store.
// Suitable for distributed production deployments.
//
// Each (kind, key) bucket is a Redis list; per-key serialization comes from
// Redis executing list operations atomically. Two index sets track known
// kinds and the keys within each kind so kind-wide queries and cleanup can
// enumerate buckets without SCAN.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a new Redis-based store
func NewRedisStore(config StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "hiveflow:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used by tests.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "hiveflow:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) listKey(kind, key string) string {
	return s.keyPrefix + "rec:" + kind + ":" + key
}

func (s *RedisStore) kindsKey() string {
	return s.keyPrefix + "kinds"
}

func (s *RedisStore) keysKey(kind string) string {
	return s.keyPrefix + "keys:" + kind
}

// Append persists one record
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	if rec.Kind == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.listKey(rec.Kind, rec.Key), data)
	pipe.SAdd(ctx, s.kindsKey(), rec.Kind)
	pipe.SAdd(ctx, s.keysKey(rec.Kind), rec.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}
	return nil
}

func (s *RedisStore) loadBucket(ctx context.Context, kind, key string) ([]Record, error) {
	raw, err := s.client.LRange(ctx, s.listKey(kind, key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("corrupt record in %s:%s: %w", kind, key, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Query returns matching records, oldest first
func (s *RedisStore) Query(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Kind == "" {
		return nil, ErrInvalidInput
	}

	var results []Record
	if filter.Key != "" {
		recs, err := s.loadBucket(ctx, filter.Kind, filter.Key)
		if err != nil {
			return nil, err
		}
		results = recs
	} else {
		keys, err := s.client.SMembers(ctx, s.keysKey(filter.Kind)).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			recs, err := s.loadBucket(ctx, filter.Kind, key)
			if err != nil {
				return nil, err
			}
			results = append(results, recs...)
		}
		sortRecords(results)
	}
	return applyWindow(results, filter), nil
}

// Latest returns the most recent record for (kind, key)
func (s *RedisStore) Latest(ctx context.Context, kind, key string) (Record, error) {
	raw, err := s.client.LIndex(ctx, s.listKey(kind, key), -1).Result()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt record in %s:%s: %w", kind, key, err)
	}
	return rec, nil
}

// Cleanup removes records older than the given age
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	kinds, err := s.client.SMembers(ctx, s.kindsKey()).Result()
	if err != nil {
		return 0, err
	}
	for _, kind := range kinds {
		keys, err := s.client.SMembers(ctx, s.keysKey(kind)).Result()
		if err != nil {
			return removed, err
		}
		for _, key := range keys {
			recs, err := s.loadBucket(ctx, kind, key)
			if err != nil {
				return removed, err
			}
			kept := make([]any, 0, len(recs))
			dropped := 0
			for _, rec := range recs {
				if rec.Timestamp.Before(cutoff) {
					dropped++
					continue
				}
				data, err := json.Marshal(rec)
				if err != nil {
					return removed, err
				}
				kept = append(kept, data)
			}
			if dropped == 0 {
				continue
			}
			pipe := s.client.TxPipeline()
			pipe.Del(ctx, s.listKey(kind, key))
			if len(kept) > 0 {
				pipe.RPush(ctx, s.listKey(kind, key), kept...)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return removed, err
			}
			removed += dropped
		}
	}
	return removed, nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
