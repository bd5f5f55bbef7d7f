// Package ratelimit provides Redis-backed fixed-window rate limiting using
// INCR + EXPIRE.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"supportchat/backend/internal/config"
)

// Rule defines a rate limiting policy: the Redis key prefix, the maximum
// number of requests in the window and the window duration.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// RuleMessage throttles send_message per user.
var RuleMessage = Rule{Key: "rl:msg:", Limit: config.MessageRateLimit, Window: config.MessageRateWindow}

// Limiter performs rate limiting checks against Redis. A nil *Limiter allows
// everything.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Connect opens a Redis client and verifies it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Allow reports whether identifier is still within rule. On Redis errors it
// fails open so an outage never blocks chat traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("WARNING: [ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("WARNING: [ratelimit] redis EXPIRE error key=%s: %v", key, err)
		}
	}
	return count <= int64(rule.Limit)
}

// Reset clears the counter of identifier.
func (l *Limiter) Reset(ctx context.Context, identifier string, rule Rule) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, rule.Key+identifier).Err()
}
