package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitConfig config for the per-company RPS limiter.
type RateLimitConfig struct {
	Redis          *redis.Client // nil uses an in-process token bucket per company
	DefaultRPS     int           // <= 0 disables limiting
	Burst          int           // local limiter only; defaults to DefaultRPS
	KeyPrefix      string        // e.g. "rl:company:"
	Window         time.Duration // usually 1s
	RetryAfterHint bool          // set Retry-After header when limited
	LocalCapacity  int           // companies tracked by the local limiter; defaults to 10000
}

// RateLimitMiddleware applies a fixed-window per-company limit in Redis, or a token bucket
// when Redis is not configured. It expects company_id in echo.Context (set by APIKeyMiddleware).
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:company:"
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.DefaultRPS
	}
	local := newLocalLimiters(cfg.DefaultRPS, cfg.Burst, cfg.LocalCapacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			companyID, ok := CompanyIDFromCtx(c)
			if !ok || cfg.DefaultRPS <= 0 {
				return next(c)
			}

			now := time.Now()
			var allowed bool
			if cfg.Redis == nil {
				allowed = local.get(companyID).AllowN(now, 1)
			} else {
				// fixed-window key: rl:company:{id}:{unix_sec}
				ctx := c.Request().Context()
				key := cfg.KeyPrefix + strconv.FormatInt(companyID, 10) + ":" + strconv.FormatInt(now.Unix(), 10)

				pipe := cfg.Redis.Pipeline()
				cnt := pipe.Incr(ctx, key)
				pipe.Expire(ctx, key, cfg.Window*2)
				if _, err := pipe.Exec(ctx); err != nil {
					// redis unavailable: degrade to the local bucket rather than failing open
					allowed = local.get(companyID).AllowN(now, 1)
				} else {
					allowed = cnt.Val() <= int64(cfg.DefaultRPS)
				}
			}

			if !allowed {
				if cfg.RetryAfterHint {
					remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
					secs := int(remain.Round(time.Second) / time.Second)
					if secs < 1 {
						secs = 1
					}
					c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
			}
			return next(c)
		}
	}
}

// localLimiters keeps a token bucket per recently seen company. The least recently used
// bucket is dropped once capacity is reached; a returning company starts with a full burst.
type localLimiters struct {
	rps   int
	burst int

	mu sync.Mutex
	m  *lru.Cache[int64, *rate.Limiter]
}

func newLocalLimiters(rps, burst, capacity int) *localLimiters {
	if capacity <= 0 {
		capacity = 10_000
	}
	m, _ := lru.New[int64, *rate.Limiter](capacity) // errors only on a non-positive size
	return &localLimiters{rps: rps, burst: burst, m: m}
}

func (l *localLimiters) get(companyID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m.Get(companyID); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.m.Add(companyID, lim)
	return lim
}
