package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	httpSrv "github.com/jmehdipour/email-gateway/internal/http"
	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/logger"
	"github.com/jmehdipour/email-gateway/internal/mailer"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/service/authorizer"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/jmehdipour/email-gateway/internal/service/email"
	"github.com/jmehdipour/email-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		lg := logger.Log
		defer func() { _ = lg.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		if redisClient != nil {
			defer func() { _ = redisClient.Close() }()
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse.DSN, db.OptsFrom(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}

		// repos (MySQL)
		companiesRepo := repository.NewCompaniesRepository(mysqlDB)
		keysRepo := repository.NewCachedAPIKeysRepository(repository.NewAPIKeysRepository(mysqlDB), redisClient, cfg.APIKeyCache.TTL)
		profilesRepo := repository.NewSMTPProfilesRepository(mysqlDB)
		templatesRepo := repository.NewTemplatesRepository(mysqlDB)
		logsRepo := repository.NewEmailLogsRepository(mysqlDB)

		// log listing reads the ClickHouse mirror when configured
		var lister repository.EmailLogLister = logsRepo
		if chDB != nil {
			defer func() { _ = chDB.Close() }()
			lister = repository.NewCHEmailLogsRepository(chDB)
		}

		// services
		creditLedger := ledger.New(companiesRepo, ledger.Pricing{Free: cfg.Pricing.Free, Developer: cfg.Pricing.Developer}, lg.Named("ledger"))
		auth := authorizer.New(keysRepo, profilesRepo, creditLedger, lg.Named("authorizer"))

		var (
			queue dispatch.Queue
			pool  *worker.Pool
		)
		switch cfg.Dispatch.Mode {
		case config.DispatchModeOutbox:
			queue = dispatch.NewOutboxQueue(repository.NewOutboxRepository(mysqlDB))
		default:
			m := mailer.New(mailer.NewSMTPTransport(cfg.Mailer.Timeout, cfg.Mailer.DefaultPort), mailer.Config{
				MaxAttempts:   cfg.Mailer.MaxAttempts,
				FailThreshold: cfg.Mailer.FailThreshold,
				OpenFor:       cfg.Mailer.OpenFor,
			})
			deliverer := worker.NewDeliverer(m, logsRepo, cfg.Dispatch.SendTimeout, lg.Named("deliverer"))
			pool = worker.NewPool(deliverer, cfg.Dispatch.WorkerCount, cfg.Dispatch.QueueSize, lg.Named("pool"))
			pool.Start(context.Background())
			queue = pool
		}
		dispatcher := dispatch.New(templatesRepo, logsRepo, queue, lg.Named("dispatch"))
		emailSvc := email.New(auth, dispatcher, creditLedger, lg.Named("email"))

		server := httpSrv.NewServer(httpSrv.Options{
			LogLevel:  cfg.Log.Level,
			RateRPS:   cfg.RateLimit.RPS,
			RateBurst: cfg.RateLimit.Burst,
		}, httpSrv.Deps{
			Sender:     emailSvc,
			Identifier: auth,
			Accounts:   creditLedger,
			Counter:    logsRepo,
			Logs:       lister,
			Redis:      redisClient,
			Log:        lg.Named("http"),
		})

		errCh := make(chan error, 1)
		go func() {
			lg.Info("starting http", zap.String("addr", cfg.HTTP.Addr), zap.String("dispatch_mode", cfg.Dispatch.Mode))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			lg.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		// in-flight requests are done; drain queued deliveries
		if pool != nil {
			pool.Stop()
		}
		return nil
	},
}
