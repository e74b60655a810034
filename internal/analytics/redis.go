// Package analytics keeps windowed counters of fired reminders in Redis.
// Counters feed usage dashboards; they never affect delivery correctness.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"napomni/internal/domain"
)

type Config struct {
	// Window is the counter bucket width. Supported: 1m, 5m, 1h.
	Window time.Duration
	// Retention is how long a bucket key lives.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:    time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	return &RedisSink{client: client, config: config}
}

// Record bumps the user's reminder counter for the bucket containing the
// fire instant. Best effort: failures are logged and swallowed.
func (s *RedisSink) Record(ctx context.Context, due domain.ReminderDue) {
	key := buildKey(due.UserID, due.FireAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline failed: %v", err)
	}
}

// CountInWindow sums the user's counters over the buckets covering
// [from, to).
func (s *RedisSink) CountInWindow(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	var keys []string
	for t := from.Truncate(s.config.Window); t.Before(to); t = t.Add(s.config.Window) {
		keys = append(keys, buildKey(userID, t, s.config.Window))
	}
	if len(keys) == 0 {
		return 0, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis mget: %w", err)
	}

	var total int64
	for _, v := range values {
		if v == nil {
			continue
		}
		var n int64
		if _, err := fmt.Sscan(v.(string), &n); err == nil {
			total += n
		}
	}
	return total, nil
}

func buildKey(userID int64, t time.Time, window time.Duration) string {
	return fmt.Sprintf("u:%d:reminders:%s", userID, bucket(t, window))
}

func bucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
