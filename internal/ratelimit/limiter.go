// Package ratelimit caps kiosk lookups and public slot queries per salon and
// caller with a fixed window shared through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"salonsched/backend/internal/metrics"
)

// Counter increments key and returns the count within the current window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

var redisFixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type RedisCounter struct {
	rdb redis.Scripter
}

func NewRedisCounter(rdb redis.Scripter) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	ms := window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := redisFixedWindowScript.Run(ctx, c.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// MemoryCounter is a single-process fallback for when Redis is not configured.
// Expired windows are swept at most once per window length, so keys built
// from arbitrary caller input cannot grow the map without bound.
type MemoryCounter struct {
	mu        sync.Mutex
	windows   map[string]memoryWindow
	nextSweep time.Time
	now       func() time.Time
}

type memoryWindow struct {
	count   int64
	expires time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]memoryWindow), now: time.Now}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !now.Before(c.nextSweep) {
		for k, w := range c.windows {
			if !now.Before(w.expires) {
				delete(c.windows, k)
			}
		}
		c.nextSweep = now.Add(window)
	}
	w := c.windows[key]
	if !now.Before(w.expires) {
		w = memoryWindow{expires: now.Add(window)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

type Config struct {
	Limit    int
	Window   time.Duration
	Prefix   string
	FailOpen bool
}

type Limiter struct {
	counter Counter
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewLimiter(counter Counter, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{counter: counter, cfg: cfg, logger: logger, metrics: m}
}

// Allow reports whether one more call under key fits in the window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.counter.Incr(ctx, l.cfg.Prefix+":"+key, l.cfg.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(l.cfg.Limit), nil
}

// SalonScoped is implemented by requests that carry a salon id.
type SalonScoped interface {
	GetSalonID() string
}

// UnaryServerInterceptor limits the listed full method names. Calls are keyed
// by method, salon and peer address.
func (l *Limiter) UnaryServerInterceptor(methods ...string) grpc.UnaryServerInterceptor {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return handler(ctx, req)
		}

		salon := ""
		if s, ok := req.(SalonScoped); ok {
			salon = s.GetSalonID()
		}
		key := info.FullMethod + ":" + salon + ":" + peerKey(ctx)

		ok, err := l.Allow(ctx, key)
		if err != nil {
			l.logger.Warn("rate limiter error", "method", info.FullMethod, "err", err)
			if l.cfg.FailOpen {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unavailable, "rate limiter unavailable")
		}
		if !ok {
			l.metrics.RateLimited(info.FullMethod)
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func peerKey(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// ReadyCheck pings Redis.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
