package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/analyzer"
	"github.com/tphagent/marketing-engine/internal/cache"
	"github.com/tphagent/marketing-engine/internal/config"
	collyfetcher "github.com/tphagent/marketing-engine/internal/fetcher/colly"
	"github.com/tphagent/marketing-engine/internal/logging"
	"github.com/tphagent/marketing-engine/internal/metrics"
	"github.com/tphagent/marketing-engine/internal/policy/ratelimit"
)

func newAnalyzeCmd() *cobra.Command {
	var socialURL string

	cmd := &cobra.Command{
		Use:   "analyze <website-url>",
		Short: "Runs a single analysis and prints the result as JSON",
		Long: `Fetches and analyzes one website (plus an optional social profile),
synthesizes a marketing strategy, and prints the combined result to stdout.
Useful for smoke tests and offline runs without the HTTP service.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyzeCommand(cmd, args[0], socialURL)
		},
	}
	cmd.Flags().StringVar(&socialURL, "social", "", "optional social profile URL")
	return cmd
}

func runAnalyzeCommand(cmd *cobra.Command, websiteURL, socialURL string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	metrics.Init()

	target, err := analysis.ValidateTarget("website_url", websiteURL)
	if err != nil {
		return err
	}
	secondary := ""
	if socialURL != "" {
		secondary, err = analysis.ValidateTarget("social_url", socialURL)
		if err != nil {
			return err
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.PerHostRPS,
		DefaultBurst: cfg.HTTP.PerHostBurst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		BackoffInitial: time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, limiter)
	siteAnalyzer := analyzer.New(fetcher, cache.New(cfg.Cache.Capacity, cfg.CacheTTL()), logger)
	synthesizer := buildSynthesizer(cfg, logger)

	ctx := cmd.Context()
	primary := siteAnalyzer.Analyze(ctx, target)
	var secondaryResult *analysis.ExtractionResult
	if secondary != "" {
		result := siteAnalyzer.Analyze(ctx, secondary)
		secondaryResult = &result
	}

	strategyResult, err := synthesizer.Synthesize(ctx, primary, secondaryResult)
	if err != nil {
		return fmt.Errorf("synthesize strategy: %w", err)
	}

	out, err := json.MarshalIndent(analysis.Result{
		Strategy:  strategyResult,
		Primary:   primary,
		Secondary: secondaryResult,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
