package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	"github.com/jmehdipour/email-gateway/internal/kafka"
	"github.com/jmehdipour/email-gateway/internal/logger"
	"github.com/jmehdipour/email-gateway/internal/mailer"
	"github.com/jmehdipour/email-gateway/internal/metrics"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/jmehdipour/email-gateway/internal/service/dispatch"
	"github.com/jmehdipour/email-gateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var senderCmd = &cobra.Command{
	Use:   "sender",
	Short: "Consume email envelopes from Kafka and deliver them over SMTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		lg := logger.Log.Named("sender")
		defer func() { _ = lg.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		logsRepo := repository.NewEmailLogsRepository(dbx)
		profilesRepo := repository.NewSMTPProfilesRepository(dbx)

		m := mailer.New(mailer.NewSMTPTransport(cfg.Mailer.Timeout, cfg.Mailer.DefaultPort), mailer.Config{
			MaxAttempts:   cfg.Mailer.MaxAttempts,
			FailThreshold: cfg.Mailer.FailThreshold,
			OpenFor:       cfg.Mailer.OpenFor,
		})
		deliverer := worker.NewDeliverer(m, logsRepo, cfg.Dispatch.SendTimeout, lg)

		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "mailgw-sender"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          dispatch.TopicEmailSend,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
			MaxWait:        time.Duration(cfg.Kafka.MaxWaitMS) * time.Millisecond,
			Logger:         lg.Named("kafka"),
		})
		defer consumer.Close()

		w := worker.NewSenderKafka(dbx, consumer, logsRepo, profilesRepo, deliverer, lg)

		// tune knobs
		if cfg.Dispatch.WorkerCount > 0 {
			w.Workers = cfg.Dispatch.WorkerCount
		}
		if cfg.Dispatch.BatchSize > 0 {
			w.BatchSize = cfg.Dispatch.BatchSize
		}
		if cfg.Dispatch.BatchWait > 0 {
			w.BatchWait = cfg.Dispatch.BatchWait
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lg.Info("sender started",
			zap.String("topic", dispatch.TopicEmailSend),
			zap.String("group", groupID),
			zap.Int("workers", w.Workers),
			zap.Int("batch_size", w.BatchSize),
			zap.Duration("batch_wait", w.BatchWait),
		)
		return w.Run(ctx)
	},
}
