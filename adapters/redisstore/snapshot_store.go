// Package redisstore persists statistic snapshots in Redis. Snapshots are
// small relative to the event history they summarize, so a single JSON blob
// per bundle keeps restore atomic: either the whole engine state comes back
// or none of it does.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"offerctr/domain/core"
	"offerctr/ports"
)

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Dial connects and verifies the connection with a ping
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// snapshotStore implements the SnapshotStorePort
type snapshotStore struct {
	client *redis.Client
	prefix string
}

// NewSnapshotStore creates a snapshot store over an established client
func NewSnapshotStore(client *redis.Client, prefix string) ports.SnapshotStorePort {
	if prefix == "" {
		prefix = "offerctr"
	}
	return &snapshotStore{client: client, prefix: prefix}
}

// Save writes the bundle as one JSON value
func (s *snapshotStore) Save(ctx context.Context, name string, bundle ports.SnapshotBundle) error {
	if bundle.Watermark.IsZero() {
		return core.NewInvalidStatisticError("watermark", "is zero")
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot bundle: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(s.prefix, name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot bundle: %w", err)
	}
	return nil
}

// Load reads a bundle back. Missing names map to ErrSnapshotNotFound so
// callers can fall back to a cold start.
func (s *snapshotStore) Load(ctx context.Context, name string) (*ports.SnapshotBundle, error) {
	data, err := s.client.Get(ctx, snapshotKey(s.prefix, name)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot bundle: %w", err)
	}

	var bundle ports.SnapshotBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot bundle: %w", err)
	}
	if bundle.Watermark.IsZero() {
		return nil, core.NewInvalidStatisticError("watermark", "is zero after load")
	}
	return &bundle, nil
}

// snapshotKey renders the storage key for a bundle name
func snapshotKey(prefix, name string) string {
	return fmt.Sprintf("%s:snapshot:%s", prefix, name)
}
