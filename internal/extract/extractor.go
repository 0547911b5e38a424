// Package extract turns category page HTML into listings and implements
// watch.PageFetcher on top of a raw fetcher.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

// Selectors locate the pieces of a category page.
type Selectors struct {
	Heading       string `mapstructure:"heading"`
	Listing       string `mapstructure:"listing"`
	Title         string `mapstructure:"title"`
	Price         string `mapstructure:"price"`
	Link          string `mapstructure:"link"`
	Description   string `mapstructure:"description"`
	FeaturedClass string `mapstructure:"featured_class"`
}

// Config configures an Extractor.
type Config struct {
	Selectors    Selectors
	SiteRoot     string
	UnknownLabel string
}

// DefaultSelectors matches the marktplaats.nl category page markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Heading:       "h1",
		Listing:       "div.hz-Listing-listview-content",
		Title:         "h3.hz-Listing-title",
		Price:         "p.hz-Listing-price",
		Link:          "a.hz-Listing-coverLink",
		Description:   "p.hz-Listing-description",
		FeaturedClass: "hz-Listing--featured",
	}
}

// DefaultConfig returns the marktplaats.nl extraction settings.
func DefaultConfig() Config {
	return Config{
		Selectors:    DefaultSelectors(),
		SiteRoot:     "https://www.marktplaats.nl",
		UnknownLabel: watch.UnknownCategory,
	}
}

// Extractor parses category pages.
type Extractor struct {
	sel          Selectors
	root         *url.URL
	unknownLabel string
}

// NewExtractor builds an Extractor, filling empty fields from DefaultConfig.
func NewExtractor(cfg Config) (*Extractor, error) {
	def := DefaultConfig()
	sel := cfg.Selectors
	fill := func(dst *string, fallback string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = fallback
		}
	}
	fill(&sel.Heading, def.Selectors.Heading)
	fill(&sel.Listing, def.Selectors.Listing)
	fill(&sel.Title, def.Selectors.Title)
	fill(&sel.Price, def.Selectors.Price)
	fill(&sel.Link, def.Selectors.Link)
	fill(&sel.Description, def.Selectors.Description)
	fill(&sel.FeaturedClass, def.Selectors.FeaturedClass)
	sel.FeaturedClass = strings.TrimPrefix(sel.FeaturedClass, ".")

	unknown := cfg.UnknownLabel
	fill(&unknown, def.UnknownLabel)

	var root *url.URL
	if rootText := strings.TrimSpace(cfg.SiteRoot); rootText != "" {
		parsed, err := url.Parse(rootText)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("site root %q must be an absolute URL", cfg.SiteRoot)
		}
		root = parsed
	}

	return &Extractor{sel: sel, root: root, unknownLabel: unknown}, nil
}

// UnknownLabel is the category reported for pages that could not be loaded.
func (e *Extractor) UnknownLabel() string {
	return e.unknownLabel
}

// Parse extracts the category heading and every listing block from body.
// Blocks are returned in document order, including ones the filter will later reject.
func (e *Extractor) Parse(body []byte) (watch.Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return watch.Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := watch.Page{
		Category: strings.TrimSpace(doc.Find(e.sel.Heading).First().Text()),
	}
	doc.Find(e.sel.Listing).Each(func(_ int, block *goquery.Selection) {
		page.Listings = append(page.Listings, e.listing(block))
	})
	return page, nil
}

func (e *Extractor) listing(block *goquery.Selection) watch.Listing {
	href, _ := block.Find(e.sel.Link).First().Attr("href")
	return watch.Listing{
		Title:       strings.TrimSpace(block.Find(e.sel.Title).Text()),
		Price:       ParsePrice(block.Find(e.sel.Price).Text()),
		Link:        e.absolute(href),
		Featured:    block.Closest("."+e.sel.FeaturedClass).Length() > 0,
		Description: strings.ToLower(strings.TrimSpace(block.Find(e.sel.Description).Text())),
	}
}

func (e *Extractor) absolute(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || e.root == nil {
		return ref.String()
	}
	return e.root.ResolveReference(ref).String()
}

// ParsePrice keeps only the decimal digits of text and parses them as whole euros.
// Text without digits, or digits that overflow an int, yield 0.
func ParsePrice(text string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return price
}
