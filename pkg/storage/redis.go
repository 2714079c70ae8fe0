package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMirrorKey is the Redis key the latest snapshot is written to.
const DefaultMirrorKey = "envmon:snapshot:current"

// RedisMirror exports snapshots to Redis so dashboards or other services can
// read the latest reading without talking to envmon directly.
//
// The mirror is write-only from envmon's point of view: the live reading is
// never restored from it.
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisMirror creates a Redis-backed mirror.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - key: key the snapshot is stored under (empty uses DefaultMirrorKey)
//   - ttl: snapshot expiration (0 uses default of 5 minutes)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisMirror(addr, password string, db int, key string, ttl time.Duration) (*RedisMirror, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if key == "" {
		key = DefaultMirrorKey
	}
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisMirror{
		client: client,
		key:    key,
		ttl:    ttl,
	}, nil
}

// Put stores the snapshot as JSON under the mirror key, replacing the
// previous one.
func (r *RedisMirror) Put(ctx context.Context, s Snapshot) error {
	if len(s.Values) == 0 {
		return errors.New("snapshot has no values")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return errors.New("redis mirror is closed")
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}

	return nil
}

// GetLatest retrieves the mirrored snapshot. It is the read side for other
// processes that consume the mirror; envmon itself only writes.
//
// Returns:
//   - snapshot: The mirrored snapshot (zero value if not found)
//   - found: true if a snapshot exists, false if the key is missing or expired
//   - error: non-nil if an error occurred (excluding "not found")
func (r *RedisMirror) GetLatest(ctx context.Context) (Snapshot, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return Snapshot{}, false, errors.New("redis mirror is closed")
	}

	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, true, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisMirror) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisMirror) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return errors.New("redis mirror is closed")
	}
	return r.client.Ping(ctx).Err()
}
