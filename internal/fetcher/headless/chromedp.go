// Package headless renders category pages in headless Chrome when the plain HTTP response
// does not carry the listing grid.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultWaitSelector = "body"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means one.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector is the element that must be present before the DOM is captured,
	// normally the listing block selector.
	WaitSelector string
}

// Fetcher implements watch.RawFetcher using chromedp.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher. Chrome itself starts lazily on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = defaultWaitSelector
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		slots:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch loads url in a fresh tab, waits for the listing grid and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (watch.RawPage, error) {
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return watch.RawPage{}, fmt.Errorf("headless slot wait canceled: %w", err)
	}
	defer f.slots.Release(1)

	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		return watch.RawPage{}, fmt.Errorf("navigate %s: %w", url, err)
	}
	status, err := documentStatus(resp)
	if err != nil {
		return watch.RawPage{}, err
	}

	var html, finalURL string
	if err := chromedp.Run(tabCtx,
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return watch.RawPage{}, fmt.Errorf("render %s: %w", url, err)
	}
	if finalURL == "" {
		finalURL = url
	}

	return watch.RawPage{
		URL:          finalURL,
		StatusCode:   status,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// documentStatus turns the main document response into a status code. Anything outside
// 2xx is an error so the caller keeps the plain response instead.
func documentStatus(resp *network.Response) (int, error) {
	if resp == nil {
		return 0, errors.New("headless navigation produced no document response")
	}
	status := int(resp.Status)
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return status, fmt.Errorf("headless navigation returned status %d", status)
	}
	return status, nil
}
