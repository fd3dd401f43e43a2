package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/email-gateway/internal/config"
	"github.com/jmehdipour/email-gateway/internal/db"
	"github.com/jmehdipour/email-gateway/internal/ledger"
	"github.com/jmehdipour/email-gateway/internal/logger"
	"github.com/jmehdipour/email-gateway/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Credit ledger maintenance",
	}

	var every time.Duration
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Reset monthly credits of every due company (once, or on an interval)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level)
			lg := logger.Log.Named("credits")
			defer func() { _ = lg.Sync() }()

			sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.OptsFrom(cfg.MySQL))
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer sqlDB.Close()

			l := ledger.New(repository.NewCompaniesRepository(sqlDB), ledger.Pricing{Free: cfg.Pricing.Free, Developer: cfg.Pricing.Developer}, lg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sweep := func() error {
				n, err := l.SweepDue(ctx)
				if err != nil {
					return err
				}
				lg.Info("credit sweep done", zap.Int("reset", n))
				return nil
			}

			if every <= 0 {
				return sweep()
			}

			tick := time.NewTicker(every)
			defer tick.Stop()
			for {
				if err := sweep(); err != nil {
					lg.Error("credit sweep failed", zap.Error(err))
				}
				select {
				case <-ctx.Done():
					return nil
				case <-tick.C:
				}
			}
		},
	}
	reset.Flags().DurationVar(&every, "every", 0, "repeat the sweep on this interval (0 runs once)")

	cmd.AddCommand(reset)
	return cmd
}
