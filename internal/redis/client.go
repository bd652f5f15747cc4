package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/call-signaling/config"
	"github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a crashed process leaves stale members behind
const presenceTTL = 24 * time.Hour

// Presence mirrors room membership into Redis sets so that several relay
// processes can report a shared member count. The in-process registry stays
// authoritative for forwarding.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect opens a Redis client and checks it with PING
func Connect(ctx context.Context, cfg config.RedisConfig) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPresence(client), nil
}

// NewPresence wraps an existing client
func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client, ttl: presenceTTL}
}

func peersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}

// Joined records connID as a member of roomID
func (p *Presence) Joined(ctx context.Context, roomID, connID string) error {
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, peersKey(roomID), connID)
	pipe.Expire(ctx, peersKey(roomID), p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record join of %s to %s: %w", connID, roomID, err)
	}
	return nil
}

// Left removes connID from roomID
func (p *Presence) Left(ctx context.Context, roomID, connID string) error {
	if err := p.client.SRem(ctx, peersKey(roomID), connID).Err(); err != nil {
		return fmt.Errorf("record leave of %s from %s: %w", connID, roomID, err)
	}
	return nil
}

// Count returns the number of members recorded for roomID across processes
func (p *Presence) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := p.client.SCard(ctx, peersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count members of %s: %w", roomID, err)
	}
	return n, nil
}

// Close closes the Redis connection
func (p *Presence) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
