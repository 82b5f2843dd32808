package repository

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const (
	// CatalogVersionKey counts changes to the level catalog so clients can detect new levels
	CatalogVersionKey = "nonogram:levels:version"
)

// VersionCounter tracks the level catalog version
type VersionCounter interface {
	BumpCatalogVersion(ctx context.Context) (int64, error)
	GetCatalogVersion(ctx context.Context) (int64, error)
}

// RedisRepository handles all Redis operations
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a new Redis repository
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{
		client: client,
	}
}

// BumpCatalogVersion increments the global catalog version and returns the new value
func (r *RedisRepository) BumpCatalogVersion(ctx context.Context) (int64, error) {
	return r.client.Incr(ctx, CatalogVersionKey).Result()
}

// GetCatalogVersion returns the current catalog version
func (r *RedisRepository) GetCatalogVersion(ctx context.Context) (int64, error) {
	version, err := r.client.Get(ctx, CatalogVersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil // Version not set yet
		}
		return 0, err
	}
	return version, nil
}

// Ping checks if Redis is reachable
func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// LocalVersion is a process-local VersionCounter used when Redis is disabled
type LocalVersion struct {
	v atomic.Int64
}

// BumpCatalogVersion implements VersionCounter
func (l *LocalVersion) BumpCatalogVersion(context.Context) (int64, error) {
	return l.v.Add(1), nil
}

// GetCatalogVersion implements VersionCounter
func (l *LocalVersion) GetCatalogVersion(context.Context) (int64, error) {
	return l.v.Load(), nil
}
