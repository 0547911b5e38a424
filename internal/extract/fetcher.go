package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

// Waiter paces outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Promoter decides whether a raw page should be re-fetched headlessly.
type Promoter interface {
	ShouldPromote(page watch.RawPage) bool
}

// FetcherConfig wires a Fetcher. Raw and Extractor are required.
type FetcherConfig struct {
	Raw       watch.RawFetcher
	Extractor *Extractor
	Logger    *zap.Logger

	// Headless, when set, re-fetches pages the Promoter flags.
	Headless watch.RawFetcher
	Promoter Promoter
	Limiter  Waiter
	Timeout  time.Duration
}

// Fetcher implements watch.PageFetcher. It never returns an error: every failure is
// logged and reported as a page with no listings and the unknown category label.
type Fetcher struct {
	cfg    FetcherConfig
	logger *zap.Logger
}

var _ watch.PageFetcher = (*Fetcher)(nil)

// NewFetcher validates cfg and returns a Fetcher.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Raw == nil {
		return nil, fmt.Errorf("raw fetcher is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Headless != nil && cfg.Promoter == nil {
		return nil, fmt.Errorf("headless fetcher requires a promoter")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// Fetch loads url and extracts its listings.
func (f *Fetcher) Fetch(ctx context.Context, url string) watch.Page {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	page, err := f.fetch(ctx, url)
	if err != nil {
		f.logger.Warn("category fetch failed", zap.String("url", url), zap.Error(err))
		return watch.Page{Category: f.cfg.Extractor.UnknownLabel()}
	}
	return page
}

func (f *Fetcher) fetch(ctx context.Context, url string) (watch.Page, error) {
	raw, err := f.load(ctx, f.cfg.Raw, url)
	if err != nil {
		return watch.Page{}, err
	}

	if f.cfg.Headless != nil && f.cfg.Promoter.ShouldPromote(raw) {
		f.logger.Debug("promoting category fetch to headless", zap.String("url", url))
		rendered, herr := f.load(ctx, f.cfg.Headless, url)
		if herr != nil {
			f.logger.Warn("headless fetch failed, using plain response",
				zap.String("url", url), zap.Error(herr))
		} else {
			raw = rendered
		}
	}

	page, err := f.cfg.Extractor.Parse(raw.Body)
	if err != nil {
		return watch.Page{}, err
	}
	f.logger.Debug("category fetched",
		zap.String("url", url),
		zap.Int("status", raw.StatusCode),
		zap.Int("listings", len(page.Listings)),
		zap.Bool("headless", raw.UsedHeadless),
		zap.Duration("duration", raw.Duration),
	)
	return page, nil
}

func (f *Fetcher) load(ctx context.Context, raw watch.RawFetcher, url string) (watch.RawPage, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
			return watch.RawPage{}, err
		}
	}
	page, err := raw.Fetch(ctx, url)
	if err != nil {
		return watch.RawPage{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return watch.RawPage{}, fmt.Errorf("fetch %s: unexpected status %d", url, page.StatusCode)
	}
	if err := ctx.Err(); err != nil {
		return watch.RawPage{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return page, nil
}
