// Package mute provides moderation mutes backed by Redis. A mute is a simple
// key-value pair with TTL-based expiry:
//
//	Key:   mute:<user_id>
//	Value: <reason>
//	TTL:   mute duration
//
// Muted users cannot post to the chat room until the key expires or an admin
// lifts the mute.
package mute

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MutePrefix is the Redis key prefix for mute records.
	MutePrefix = "mute:"

	// DefaultDuration is applied when an admin mutes without an explicit
	// duration.
	DefaultDuration = 15 * time.Minute
)

// Store manages mute records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a mute store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Mute silences a user for the given duration with a reason. The mute
// expires automatically.
func (s *Store) Mute(ctx context.Context, userID string, duration time.Duration, reason string) error {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return s.client.Set(ctx, MutePrefix+userID, reason, duration).Err()
}

// Unmute lifts a mute immediately.
func (s *Store) Unmute(ctx context.Context, userID string) error {
	return s.client.Del(ctx, MutePrefix+userID).Err()
}

// IsMuted reports whether a user is currently muted. Redis errors are
// returned so callers can decide how to handle them; the send path fails
// open so a Redis outage does not silence the room.
func (s *Store) IsMuted(ctx context.Context, userID string) (bool, error) {
	err := s.client.Get(ctx, MutePrefix+userID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Info returns the remaining duration and reason of an active mute.
// Returns (0, "", nil) if the user is not muted.
func (s *Store) Info(ctx context.Context, userID string) (time.Duration, string, error) {
	key := MutePrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// The mute exists but the TTL read failed. Report muted with zero
		// remaining rather than swallowing the mute.
		return 0, reason, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl, reason, nil
}
