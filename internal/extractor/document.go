// Package extractor derives marketing-relevant facts from fetched HTML.
//
// Extraction is organized as independent facets (identity, pricing,
// amenities, location, social links, review platforms). Facets run
// concurrently against a shared parsed document, and a facet failure
// degrades to a warning instead of failing the page.
package extractor

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document wraps a parsed page so every facet shares one parse. The plain
// text and its lowercase form are materialized once because nearly every
// facet scans them.
type Document struct {
	doc       *goquery.Document
	text      string
	lowerText string
}

// NewDocument parses an HTML body.
func NewDocument(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	text := normalizeText(doc.Text())
	return &Document{
		doc:       doc,
		text:      text,
		lowerText: strings.ToLower(text),
	}, nil
}

// Text returns the page's visible text with whitespace collapsed.
func (d *Document) Text() string { return d.text }

// LowerText returns the lowercase form of Text.
func (d *Document) LowerText() string { return d.lowerText }

// Find proxies to the underlying goquery document.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// normalizeText cleans up a string by trimming space and collapsing
// newlines into single spaces.
func normalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}
