package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bistro/internal/config"
	"bistro/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// tokenBucket refills the whole budget once per interval. It returns
// {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

local elapsed = math.max(0, now_ms - last_refill)
local intervals = math.floor(elapsed / interval_ms)
if intervals > 0 then
	tokens = capacity
	last_refill = last_refill + (intervals * interval_ms)
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// ByAccount counts authenticated requests per account, falling back to the
// client address for anonymous callers.
func ByAccount(r *http.Request) string {
	if account := AccountFromContext(r.Context()); account != nil {
		return "account:" + account.ID
	}
	return ByIP(r)
}

// ByIP counts requests per client address.
func ByIP(r *http.Request) string {
	return "ip:" + clientIP(r)
}

// RateLimiter enforces per-route request budgets in Redis.
type RateLimiter struct {
	rdb     redis.Scripter
	prefix  string
	enabled bool
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRateLimiter creates a limiter. A nil client or a disabled config yields
// a limiter whose middleware passes every request through.
func NewRateLimiter(rdb redis.Scripter, cfg config.RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:     rdb,
		prefix:  cfg.Prefix,
		enabled: cfg.Enabled && rdb != nil,
		now:     time.Now,
		logger:  logger.With().Str("component", "rate-limiter").Logger(),
	}
}

// Limit allows rule.Limit requests per rule.Window for each key under name.
// Redis errors let the request through.
func (l *RateLimiter) Limit(name string, rule config.RateRule, keyFn KeyFunc) func(http.Handler) http.Handler {
	if !l.enabled || rule.Limit < 1 || rule.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	ttl := int64(math.Ceil((2 * rule.Window).Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.key(name, keyFn(r))

			vals, err := tokenBucket.Run(r.Context(), l.rdb, []string{key},
				l.now().UnixMilli(), rule.Limit, rule.Window.Milliseconds(), ttl,
			).Int64Slice()
			if err != nil || len(vals) != 3 {
				l.logger.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))

			if vals[0] != 1 {
				secs := int(math.Ceil(float64(vals[2]) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				l.logger.Info().Str("key", key).Int("retry_after", secs).Msg("rate limit exceeded")

				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(model.ErrorResponse{
					Error:         model.ErrCodeRateLimited,
					Message:       "Too many requests, please try again later",
					RetryAfter:    secs,
					CorrelationID: RequestIDFromContext(r.Context()),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) key(name, identity string) string {
	parts := []string{name, identity}
	if l.prefix != "" {
		parts = append([]string{l.prefix}, parts...)
	}
	return strings.Join(parts, ":")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

