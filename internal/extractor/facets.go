package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/tphagent/marketing-engine/internal/analysis"
)

// apply merges one facet's findings into the shared result. Facets compute
// concurrently and return an apply closure; the merge itself runs serially
// so no facet ever writes the result directly.
type apply func(*analysis.ExtractionResult)

type facet struct {
	name string
	fn   func(*Document) apply
}

// facets lists every extractor in merge order. Warnings are reported in
// this order regardless of which goroutine finished first.
var facets = []facet{
	{name: "identity", fn: extractIdentity},
	{name: "pricing", fn: extractPricing},
	{name: "amenities", fn: extractAmenities},
	{name: "location", fn: extractLocation},
	{name: "social", fn: extractSocial},
	{name: "reviews", fn: extractReviews},
}

var identityKeywords = []string{
	"hotel", "resort", "lodge", "inn", "boutique", "luxury", "accommodation",
}

func extractIdentity(d *Document) apply {
	identity := analysis.Identity{
		Name:        normalizeText(d.Find("title").First().Text()),
		Description: strings.TrimSpace(d.Find(`meta[name="description"]`).AttrOr("content", "")),
	}
	d.Find("h1").Each(func(_ int, s *goquery.Selection) {
		if h := normalizeText(s.Text()); h != "" {
			identity.Headings = append(identity.Headings, h)
		}
	})
	identity.Keywords = matchKeywords(d.LowerText(), identityKeywords)

	return func(r *analysis.ExtractionResult) {
		r.Identity = identity
	}
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*(?:\.\d{2})?)\s*(?:USD|dollars?)`),
}

func extractPricing(d *Document) apply {
	var prices []float64
	for _, pattern := range pricePatterns {
		for _, match := range pattern.FindAllStringSubmatch(d.Text(), -1) {
			raw := strings.ReplaceAll(match[1], ",", "")
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				prices = append(prices, v)
			}
		}
	}
	if len(prices) == 0 {
		return func(*analysis.ExtractionResult) {}
	}

	sort.Float64s(prices)
	sum := 0.0
	for _, v := range prices {
		sum += v
	}
	signals := &analysis.PricingSignals{
		Min:     prices[0],
		Max:     prices[len(prices)-1],
		Average: sum / float64(len(prices)),
		Samples: prices,
	}
	return func(r *analysis.ExtractionResult) {
		r.Pricing = signals
	}
}

var amenityKeywords = []string{
	"wifi", "pool", "spa", "gym", "restaurant", "bar", "parking",
	"breakfast", "room service", "concierge", "business center",
	"pet friendly", "airport shuttle", "valet", "fitness center",
}

func extractAmenities(d *Document) apply {
	amenities := matchKeywords(d.LowerText(), amenityKeywords)
	return func(r *analysis.ExtractionResult) {
		r.Amenities = amenities
	}
}

var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s+[A-Za-z\s]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr)`),
	regexp.MustCompile(`[A-Za-z\s]+,\s*[A-Z]{2}\s+\d{5}`),
}

var locationKeywords = []string{
	"near", "close to", "minutes from", "located in", "downtown", "beach", "airport",
}

func extractLocation(d *Document) apply {
	var loc analysis.Location
	for _, pattern := range addressPatterns {
		for _, match := range pattern.FindAllString(d.Text(), -1) {
			loc.Addresses = append(loc.Addresses, strings.TrimSpace(match))
		}
	}
	loc.Keywords = matchKeywords(d.LowerText(), locationKeywords)
	if len(loc.Addresses) == 0 && len(loc.Keywords) == 0 {
		return func(*analysis.ExtractionResult) {}
	}
	return func(r *analysis.ExtractionResult) {
		r.Location = &loc
	}
}

var socialPlatforms = []string{
	"facebook", "instagram", "twitter", "linkedin", "youtube", "tiktok",
}

func extractSocial(d *Document) apply {
	links := make(map[string]string)
	d.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		lower := strings.ToLower(href)
		for _, platform := range socialPlatforms {
			if _, seen := links[platform]; seen {
				continue
			}
			if strings.Contains(lower, platform) {
				links[platform] = href
			}
		}
	})
	if len(links) == 0 {
		return func(*analysis.ExtractionResult) {}
	}
	return func(r *analysis.ExtractionResult) {
		r.SocialLinks = links
	}
}

var reviewKeywords = []string{
	"reviews", "ratings", "stars", "tripadvisor", "booking.com", "google reviews",
}

func extractReviews(d *Document) apply {
	platforms := matchKeywords(d.LowerText(), reviewKeywords)
	return func(r *analysis.ExtractionResult) {
		r.ReviewPlatforms = platforms
	}
}

// matchKeywords returns the subset of keywords present in the text,
// preserving the keyword list's order.
func matchKeywords(lowerText string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(lowerText, kw) {
			found = append(found, kw)
		}
	}
	return found
}
