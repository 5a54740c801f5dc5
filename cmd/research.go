package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/delver-dev/delver/config"
	"github.com/delver-dev/delver/internal/budget"
	"github.com/delver-dev/delver/internal/llm"
	"github.com/delver-dev/delver/internal/research"
	srv "github.com/delver-dev/delver/internal/server"
	"github.com/delver-dev/delver/internal/telemetry"
)

func researchCMD() *cobra.Command {
	var cfgPath string
	var out string
	var cycles, maxQueries, maxSources, maxTokens int
	var cmd = &cobra.Command{
		Use:   "research [topic]",
		Short: "Run one research job and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			topic := strings.Join(args, " ")

			b := budget.Budget{
				CycleBudget:        cfg.Research.CycleBudget,
				MaxQueriesPerCycle: cfg.Research.MaxQueriesPerCycle,
				MaxSources:         cfg.Research.MaxSources,
				MaxReportTokens:    cfg.Research.MaxReportTokens,
			}
			if cycles >= 0 {
				b.CycleBudget = cycles
			}
			if maxQueries > 0 {
				b.MaxQueriesPerCycle = maxQueries
			}
			if maxSources > 0 {
				b.MaxSources = maxSources
			}
			if maxTokens > 0 {
				b.MaxReportTokens = maxTokens
			}
			if err := b.Validate(); err != nil {
				return err
			}

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
			logger := log.New(os.Stderr, "[RESEARCH] ", log.LstdFlags)
			orch := research.NewOrchestrator(cfg, provider, searcher, scraper, nil, tele, logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			job := research.NewJob(topic, b)
			if err := orch.Run(ctx, job); err != nil {
				return err
			}

			summary := tele.CostSummary()
			logger.Printf("done: %d findings, %d sources, $%.4f across %d tokens",
				len(job.Findings), len(job.Sources), summary.TotalCost, summary.TotalTokens)

			if out != "" {
				return os.WriteFile(out, []byte(job.Report.Markdown), 0o644)
			}
			fmt.Println(job.Report.Markdown)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().IntVar(&cycles, "cycles", -1, "override cycle budget")
	cmd.Flags().IntVar(&maxQueries, "max-queries", 0, "override max queries per cycle")
	cmd.Flags().IntVar(&maxSources, "max-sources", 0, "override max sources")
	cmd.Flags().IntVar(&maxTokens, "max-report-tokens", 0, "override report token ceiling")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
