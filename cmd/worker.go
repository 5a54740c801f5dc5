package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/delver-dev/delver/config"
	"github.com/delver-dev/delver/internal/llm"
	"github.com/delver-dev/delver/internal/queue/streams"
	"github.com/delver-dev/delver/internal/research"
	srv "github.com/delver-dev/delver/internal/server"
	"github.com/delver-dev/delver/internal/store"
	"github.com/delver-dev/delver/internal/telemetry"
	"github.com/delver-dev/delver/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var cmd = &cobra.Command{
		Use:   "worker",
		Short: "Run a background research worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := store.New(ctx, cfg.Storage.Postgres)
			if err != nil {
				return fmt.Errorf("worker store init: %w", err)
			}

			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Storage.Redis.Addr(),
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			})
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("worker redis ping: %w", err)
			}
			defer func() { _ = rdb.Close() }()

			if err := streams.EnsureGroup(ctx, rdb, cfg.Queue.Stream, cfg.Queue.ConsumerGroup); err != nil {
				return fmt.Errorf("worker ensure group: %w", err)
			}
			consumerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(rdb, cfg.Queue.ConsumerGroup, consumerName)

			provider, err := llm.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			searcher, err := srv.NewSearchProvider(cfg)
			if err != nil {
				return err
			}
			scraper, err := srv.NewScraper(cfg)
			if err != nil {
				return err
			}
			tele := telemetry.New(cfg.Telemetry)
			logger := log.New(os.Stdout, "[WORKER] ", log.LstdFlags)
			orch := research.NewOrchestrator(cfg, provider, searcher, scraper, st, tele, logger)

			processor := worker.NewProcessor(logger, st, consumer, cfg.Queue.Stream, orch)
			return processor.Start(ctx)
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
