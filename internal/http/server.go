package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/email-gateway/internal/http/middleware"
	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/model"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Sender interface {
	Send(ctx context.Context, apiKey string, msg dispatch.Message) (dispatch.Result, error)
}

type Accounts interface {
	CheckAndResetIfDue(ctx context.Context, companyID int64) (model.MeteringAccount, error)
}

type StatusCounter interface {
	CountByStatus(ctx context.Context, companyID int64) (map[model.EmailStatus]int64, error)
}

// Deps is everything the HTTP surface talks to.
type Deps struct {
	Sender     Sender
	Identifier middleware.Identifier
	Accounts   Accounts
	Counter    StatusCounter
	Logs       repository.EmailLogLister
	Redis      *redis.Client // nil falls back to an in-process limiter
	Log        *zap.Logger
}

type Options struct {
	LogLevel  string
	RateRPS   int
	RateBurst int
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(opts Options, d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(echoLevel(opts.LogLevel))
	e.Use(echoMid.Recover(), echoMid.RequestID())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(d.Identifier)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.Redis,
		DefaultRPS:     opts.RateRPS,
		Burst:          opts.RateBurst,
		KeyPrefix:      "rl:company:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/email/send", sendEmailHandler(d.Sender, d.Log))
	v1.GET("/dashboard/stats", dashboardStatsHandler(d.Accounts, d.Counter, d.Log))
	v1.GET("/logs", listLogsHandler(d.Logs, d.Log))

	return &Server{e: e, log: d.Log}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func echoLevel(level string) log.Lvl {
	switch level {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}

var _ middleware.Identifier = (*authorizer.Authorizer)(nil)
