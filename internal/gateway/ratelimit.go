package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether a client may send another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const (
	defaultClientTTL       = 10 * time.Minute
	defaultCleanupInterval = time.Minute
)

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// LocalLimiter is a per-client token bucket held in process memory.
// Idle clients are evicted after clientTTL.
type LocalLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientEntry
	rps       rate.Limit
	burst     int
	clientTTL time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter creates a limiter allowing rps requests per second with
// the given burst per client.
func NewLocalLimiter(rps, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = rps
	}
	return &LocalLimiter{
		clients:   make(map[string]*clientEntry),
		rps:       rate.Limit(rps),
		burst:     burst,
		clientTTL: defaultClientTTL,
		now:       time.Now,
	}
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= defaultCleanupInterval {
		for k, e := range l.clients {
			if now.Sub(e.lastAccess) > l.clientTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1), nil
}

// RedisLimiter is a fixed one-second window counter shared by every gateway
// replica pointing at the same Redis.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per client per second.
func NewRedisLimiter(client redis.Cmdable, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: time.Second,
		prefix: "taskboard:ratelimit:",
		now:    time.Now,
	}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	redisKey := l.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= l.limit, nil
}
