package barstore

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Key layout. Binary-stable: operators and sibling processes rely on it.
const (
	barKeyPrefix = "scanner:bars:"
	hodKeyPrefix = "scanner:hod:"

	// HeartbeatKey carries the ingestor liveness timestamp.
	HeartbeatKey = "scanner:ingestor:heartbeat"

	// EventsChannel carries trigger and hotlist frames between the engine
	// and the websocket bridges.
	EventsChannel = "scanner:events"

	pushSentPrefix = "scanner:pushover:sent:"
	tickLockPrefix = "scanner:tick:lock:"
	healthPrefix   = "scanner:healthcheck:"

	hotTTL       = 36 * time.Hour
	heartbeatTTL = 60 * time.Second
)

func barsKey(day, symbol string) string { return barKeyPrefix + day + ":" + symbol }
func hodKey(day, symbol string) string  { return hodKeyPrefix + day + ":" + symbol }

// Store is the Redis-backed hot state: day-scoped bar lists and HOD markers,
// plus the cross-process plumbing that rides on the same connection
// (heartbeat, pub/sub frames, tick locks, push idempotency keys).
type Store struct {
	client *goredis.Client
}

// New connects to Redis from a redis:// URL and pings the server.
func New(redisURL string) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[barstore] connected to %s", opts.Addr)
	return &Store{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Ping verifies connectivity with a short timeout, for health probes.
func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.client.Ping(cctx).Err()
}

// WriteHeartbeat refreshes the ingestor liveness key.
func (s *Store) WriteHeartbeat(ctx context.Context, now time.Time) error {
	return s.client.Set(ctx, HeartbeatKey, now.UTC().Format(time.RFC3339), heartbeatTTL).Err()
}

// ReadHeartbeat returns the raw heartbeat value, "" when absent or expired.
func (s *Store) ReadHeartbeat(ctx context.Context) (string, error) {
	raw, err := s.client.Get(ctx, HeartbeatKey).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("heartbeat get: %w", err)
	}
	return raw, nil
}

// AcquireTickLock takes the per-minute scan lock. ok is false when another
// replica already holds the bucket.
func (s *Store) AcquireTickLock(ctx context.Context, bucket string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, tickLockPrefix+bucket, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("tick lock %s: %w", bucket, err)
	}
	return ok, nil
}

// MarkPushSent records the per-(event, user) push idempotency key.
// ok is false when the key already existed, meaning a duplicate send.
func (s *Store) MarkPushSent(ctx context.Context, eventID string, userID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s:%d", pushSentPrefix, eventID, userID)
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("push sent mark: %w", err)
	}
	return ok, nil
}

// Publish sends a payload on a pub/sub channel.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription and waits for the server to confirm it.
// The caller owns the returned PubSub and must Close it.
func (s *Store) Subscribe(ctx context.Context, channels ...string) (*goredis.PubSub, error) {
	pubsub := s.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}
	return pubsub, nil
}

// ChannelsCheck exercises a pub/sub subscribe and discard on a throwaway
// channel, proving the fan-out layer is reachable.
func (s *Store) ChannelsCheck(ctx context.Context) error {
	name := healthPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	pubsub, err := s.Subscribe(ctx, name)
	if err != nil {
		return err
	}
	return pubsub.Close()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
