// Package strategy synthesizes marketing strategies from extraction
// results. Two implementations exist: a deterministic rules engine and an
// LLM-backed synthesizer that falls back to the rules engine on failure.
package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// defaultAveragePrice is assumed when a page exposes no pricing signals.
const defaultAveragePrice = 200.0

// allocation fractions of the monthly budget per channel; must sum to 1.
var allocation = map[string]float64{
	"google_ads":       0.60,
	"social_media":     0.25,
	"content_creation": 0.15,
}

// Rules implements analysis.Synthesizer with deterministic heuristics over
// the extracted facts.
type Rules struct {
	logger *zap.Logger
}

// NewRules builds the rule-based synthesizer.
func NewRules(logger *zap.Logger) *Rules {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rules{logger: logger.Named("strategy.rules")}
}

// Synthesize derives a strategy from one or two extraction results. It is
// total: any extraction input, including an empty one, yields a strategy.
func (r *Rules) Synthesize(_ context.Context, primary analysis.ExtractionResult, secondary *analysis.ExtractionResult) (analysis.Strategy, error) {
	if err := validateAllocation(allocation); err != nil {
		return analysis.Strategy{}, err
	}

	avgPrice := defaultAveragePrice
	if primary.Pricing != nil && primary.Pricing.Average > 0 {
		avgPrice = primary.Pricing.Average
	}

	strategy := analysis.Strategy{
		Audience:      deriveAudience(primary.Identity),
		SellingPoints: deriveSellingPoints(primary.Amenities, secondary),
		Opportunities: deriveOpportunities(primary),
		Budget:        buildBudget(avgPrice),
		Timeline:      defaultTimeline(),
		KPIs:          defaultKPIs(),
	}

	r.logger.Debug("strategy synthesized",
		zap.String("tier", strategy.Budget.Tier),
		zap.Float64("monthly", strategy.Budget.Monthly),
	)
	return strategy, nil
}

func deriveAudience(identity analysis.Identity) []string {
	haystack := strings.ToLower(identity.Name + " " + identity.Description)
	var audience []string
	if containsAny(haystack, "luxury", "boutique", "premium", "exclusive") {
		audience = append(audience, "Luxury travelers")
	}
	if containsAny(haystack, "business", "conference", "meeting") {
		audience = append(audience, "Business travelers")
	}
	if containsAny(haystack, "family", "kids", "children") {
		audience = append(audience, "Families")
	}
	if containsAny(haystack, "romantic", "honeymoon", "couples") {
		audience = append(audience, "Couples")
	}
	if len(audience) == 0 {
		audience = []string{"General travelers"}
	}
	return audience
}

func deriveSellingPoints(amenities []string, secondary *analysis.ExtractionResult) []string {
	var points []string
	byAmenity := map[string]string{
		"pool":       "Swimming pool",
		"spa":        "Spa services",
		"restaurant": "On-site dining",
		"wifi":       "Free WiFi",
	}
	for _, amenity := range []string{"pool", "spa", "restaurant", "wifi"} {
		for _, found := range amenities {
			if found == amenity {
				points = append(points, byAmenity[amenity])
				break
			}
		}
	}
	if secondary != nil && !secondary.Empty() {
		points = append(points, "Strong visual content")
	}
	if len(points) == 0 {
		points = []string{"Quality service"}
	}
	return points
}

func deriveOpportunities(primary analysis.ExtractionResult) []string {
	var opportunities []string
	if len(primary.SocialLinks) == 0 {
		opportunities = append(opportunities, "Social media presence needed")
	}
	if primary.Pricing == nil {
		opportunities = append(opportunities, "Pricing transparency needed")
	}
	if len(primary.ReviewPlatforms) == 0 {
		opportunities = append(opportunities, "Review management needed")
	}
	return opportunities
}

// buildBudget sizes the spend as a percentage of the average nightly rate
// over a 30-day month. Higher rates support a larger advertising share.
func buildBudget(avgPrice float64) analysis.Budget {
	var (
		tier       string
		percentage float64
	)
	switch {
	case avgPrice > 300:
		tier, percentage = "Premium", 0.15
	case avgPrice > 150:
		tier, percentage = "Standard", 0.12
	default:
		tier, percentage = "Budget", 0.10
	}

	monthly := round2(avgPrice * percentage * 30)
	return analysis.Budget{
		Tier:       tier,
		Monthly:    monthly,
		Daily:      round2(monthly / 30),
		Allocation: allocation,
	}
}

func defaultTimeline() []analysis.Phase {
	return []analysis.Phase{
		{
			Name:     "Setup & Launch",
			Duration: "Week 1-2",
			Tasks: []string{
				"Google Ads account setup",
				"Campaign creation",
				"Landing page optimization",
				"Tracking implementation",
			},
		},
		{
			Name:     "Optimization",
			Duration: "Week 3-4",
			Tasks: []string{
				"Performance analysis",
				"Bid optimization",
				"Ad copy testing",
				"Keyword refinement",
			},
		},
		{
			Name:     "Scale & Expand",
			Duration: "Month 2+",
			Tasks: []string{
				"Budget scaling",
				"New campaign types",
				"Advanced targeting",
				"Conversion optimization",
			},
		},
	}
}

func defaultKPIs() []string {
	return []string{
		"Click-through rate (CTR)",
		"Cost per click (CPC)",
		"Conversion rate",
		"Return on ad spend (ROAS)",
		"Cost per acquisition (CPA)",
		"Booking rate",
		"Revenue per visitor",
		"Quality score",
	}
}

func validateAllocation(fractions map[string]float64) error {
	sum := 0.0
	for _, f := range fractions {
		sum += f
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("budget allocation fractions sum to %.4f, want 1", sum)
	}
	return nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
