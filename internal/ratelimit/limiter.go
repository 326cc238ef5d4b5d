// Package ratelimit provides Redis-backed rate limiting using the INCR + EXPIRE
// window algorithm. Each throttled action (chat message, login attempt, photo
// upload, connection) gets its own rule with a per-user or per-IP key.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is one throttling policy: a key prefix plus how many actions fit in
// a window.
type Rule struct {
	Key    string        // Redis key prefix, e.g. "rl:msg:" or "rl:login:"
	Limit  int           // max actions per window
	Window time.Duration
}

// Standard rate limiting rules.
var (
	// RuleMessage allows 5 chat messages per 10 seconds per user.
	RuleMessage = Rule{Key: "rl:msg:", Limit: 5, Window: 10 * time.Second}

	// RuleLogin allows 5 login attempts per minute per IP.
	RuleLogin = Rule{Key: "rl:login:", Limit: 5, Window: 1 * time.Minute}

	// RuleUpload allows 10 photo uploads per minute per user.
	RuleUpload = Rule{Key: "rl:upload:", Limit: 10, Window: 1 * time.Minute}

	// RuleConnect allows 5 WebSocket connections per minute per IP.
	RuleConnect = Rule{Key: "rl:conn:", Limit: 5, Window: 1 * time.Minute}
)

// Limiter counts actions in Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter over the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow increments the identifier's counter for the rule and reports
// whether it is still within the limit. The first increment in a window sets
// the key expiry. Redis errors fail open so an outage does not lock users
// out of the room.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// The first increment opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// Without a TTL the key would never reset. Try to drop it so
			// the identifier is not throttled forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		return false, nil
	}

	return true, nil
}

// BoundLimiter is a Limiter fixed to a single rule, for callers that only
// track an identifier.
type BoundLimiter struct {
	limiter *Limiter
	rule    Rule
}

// Bind returns a limiter fixed to the given rule.
func (l *Limiter) Bind(rule Rule) *BoundLimiter {
	return &BoundLimiter{limiter: l, rule: rule}
}

// Allow checks the bound rule for the identifier.
func (b *BoundLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	return b.limiter.Allow(ctx, identifier, b.rule)
}

// Remaining reports how many actions the identifier has left in the current
// window. A missing key or a Redis error both report the full limit.
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
