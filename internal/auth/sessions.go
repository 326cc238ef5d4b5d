package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for refresh-session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the default refresh-session lifetime.
	SessionTTL = 24 * time.Hour

	// RememberTTL is the extended lifetime for "remember me" sessions.
	RememberTTL = 30 * 24 * time.Hour
)

// RefreshSession is the server-side state behind a refresh token.
type RefreshSession struct {
	Token     string `redis:"token"`
	UserID    string `redis:"user_id"`
	Remember  bool   `redis:"remember"`
	CreatedAt int64  `redis:"created_at"` // unix timestamp
}

// Sessions manages refresh sessions in Redis.
type Sessions struct {
	client *redis.Client
}

// NewSessions creates a refresh-session store using the provided Redis client.
func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

// Create stores a new refresh session and returns its opaque token. The TTL
// depends on the remember flag.
func (s *Sessions) Create(ctx context.Context, userID string, remember bool) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate refresh token: %w", err)
	}
	token := hex.EncodeToString(buf)

	key := SessionPrefix + token
	ttl := SessionTTL
	if remember {
		ttl = RememberTTL
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"token":      token,
		"user_id":    userID,
		"remember":   remember,
		"created_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("auth: store refresh session: %w", err)
	}
	return token, nil
}

// Get looks up a refresh session by token. Returns nil if not found or
// expired.
func (s *Sessions) Get(ctx context.Context, token string) (*RefreshSession, error) {
	var sess RefreshSession
	err := s.client.HGetAll(ctx, SessionPrefix+token).Scan(&sess)
	if err != nil {
		return nil, fmt.Errorf("auth: get refresh session: %w", err)
	}
	if sess.UserID == "" {
		return nil, nil
	}
	return &sess, nil
}

// Refresh extends the TTL of an existing session, preserving its remember
// setting.
func (s *Sessions) Refresh(ctx context.Context, sess *RefreshSession) error {
	ttl := SessionTTL
	if sess.Remember {
		ttl = RememberTTL
	}
	return s.client.Expire(ctx, SessionPrefix+sess.Token, ttl).Err()
}

// Delete revokes a refresh session immediately (logout).
func (s *Sessions) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, SessionPrefix+token).Err()
}
