package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	"github.com/jmehdipour/email-gateway/internal/kafka"
	"github.com/jmehdipour/email-gateway/internal/logger"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/worker"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Publish outbox rows to Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		lg := logger.Log.Named("relay")
		defer func() { _ = lg.Sync() }()

		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		producer := kafka.NewProducerFromConfig(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close()

		r := worker.NewOutboxRelay(repository.NewOutboxRepository(dbx), producer, lg)
		if cfg.Dispatch.BatchSize > 0 {
			r.BatchSize = cfg.Dispatch.BatchSize
		}
		if cfg.Dispatch.RelayInterval > 0 {
			r.Interval = cfg.Dispatch.RelayInterval
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lg.Info("relay started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Int("batch_size", r.BatchSize))
		return r.Run(ctx)
	},
}
