// Package analyzer turns one target URL into an ExtractionResult by
// combining the fetcher, the facet extractors, and the result cache.
package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
	"github.com/tphagent/marketing-engine/internal/extractor"
	"github.com/tphagent/marketing-engine/internal/metrics"
)

// SiteAnalyzer implements analysis.Analyzer. Failures never surface as
// errors; a fetch fault produces a result whose only content is a warning.
type SiteAnalyzer struct {
	fetcher analysis.Fetcher
	cache   analysis.Cache
	logger  *zap.Logger
}

// New builds a SiteAnalyzer. The cache may be nil to disable memoization.
func New(fetcher analysis.Fetcher, cache analysis.Cache, logger *zap.Logger) *SiteAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteAnalyzer{
		fetcher: fetcher,
		cache:   cache,
		logger:  logger.Named("analyzer"),
	}
}

// Analyze fetches and extracts one URL. Cached results are returned without
// touching the network.
func (a *SiteAnalyzer) Analyze(ctx context.Context, rawURL string) analysis.ExtractionResult {
	key, keyErr := analysis.NormalizeKey(rawURL)
	useCache := a.cache != nil && keyErr == nil
	if useCache {
		if cached, ok := a.cache.Get(key); ok {
			metrics.ObserveCacheLookup("hit")
			a.logger.Debug("cache hit", zap.String("url", rawURL))
			return cached
		}
		metrics.ObserveCacheLookup("miss")
	}

	response, err := a.fetcher.Fetch(ctx, analysis.FetchRequest{URL: rawURL})
	if err != nil {
		a.logger.Warn("fetch failed",
			zap.String("url", rawURL),
			zap.Error(err),
		)
		return analysis.ExtractionResult{
			SourceURL: rawURL,
			Warnings: []analysis.Warning{
				{Facet: "fetch", Detail: err.Error()},
			},
		}
	}

	result := extractor.Extract(ctx, rawURL, response.Body)
	a.logger.Info("page analyzed",
		zap.String("url", rawURL),
		zap.Int("status", response.StatusCode),
		zap.Duration("fetch_duration", response.Duration),
		zap.Int("warnings", len(result.Warnings)),
	)

	// Only clean results are memoized so a transient fault does not pin a
	// degraded result for the cache lifetime.
	if useCache && len(result.Warnings) == 0 {
		a.cache.Put(key, result)
	}
	return result
}
