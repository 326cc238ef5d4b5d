// Package flags provides per-user persisted string flags backed by Redis.
// The mobile client uses it for small session bits that must survive app
// restarts but are not account data: the "remember session" marker and the
// cached profile snapshot. Values are opaque strings; interpretation is the
// caller's business.
package flags

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// FlagPrefix is the Redis key prefix for flag entries.
const FlagPrefix = "flag:"

// Store is a string key/value store scoped per user.
type Store struct {
	client *redis.Client
}

// NewStore creates a flag store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(userID, name string) string {
	return FlagPrefix + userID + ":" + name
}

// Get returns the flag value and whether it exists.
func (s *Store) Get(ctx context.Context, userID, name string) (string, bool, error) {
	val, err := s.client.Get(ctx, key(userID, name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("flags: get %s: %w", name, err)
	}
	return val, true, nil
}

// Set stores the flag value. Flags have no TTL; they live until removed.
func (s *Store) Set(ctx context.Context, userID, name, value string) error {
	if err := s.client.Set(ctx, key(userID, name), value, 0).Err(); err != nil {
		return fmt.Errorf("flags: set %s: %w", name, err)
	}
	return nil
}

// Remove deletes the flag. Removing a missing flag is not an error.
func (s *Store) Remove(ctx context.Context, userID, name string) error {
	if err := s.client.Del(ctx, key(userID, name)).Err(); err != nil {
		return fmt.Errorf("flags: remove %s: %w", name, err)
	}
	return nil
}
