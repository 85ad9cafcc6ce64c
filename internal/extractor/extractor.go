package extractor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// Extract runs every facet against the body and merges their findings.
// It always returns a usable result: a parse failure or a facet panic is
// recorded as a warning, never an error.
func Extract(ctx context.Context, sourceURL string, body []byte) analysis.ExtractionResult {
	result := analysis.ExtractionResult{SourceURL: sourceURL}

	doc, err := NewDocument(body)
	if err != nil {
		result.Warnings = append(result.Warnings, analysis.Warning{
			Facet:  "parse",
			Detail: err.Error(),
		})
		return result
	}

	applies := make([]apply, len(facets))
	warnings := make([]*analysis.Warning, len(facets))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(len(facets))
	for i, f := range facets {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					warnings[i] = &analysis.Warning{
						Facet:  f.name,
						Detail: fmt.Sprintf("extractor panic: %v", r),
					}
				}
			}()
			applies[i] = f.fn(doc)
			return nil
		})
	}
	_ = g.Wait()

	// Merge serially in facet order so output is deterministic.
	for i := range facets {
		if applies[i] != nil {
			applies[i](&result)
		}
		if warnings[i] != nil {
			result.Warnings = append(result.Warnings, *warnings[i])
		}
	}
	return result
}
