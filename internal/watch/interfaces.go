package watch

import (
	"context"
	"time"
)

// PageFetcher loads a category page and extracts its listings. Implementations absorb
// every failure into an empty Page labelled UnknownCategory.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) Page
}

// NotificationSink delivers one formatted message to a destination channel.
type NotificationSink interface {
	Notify(ctx context.Context, channelID string, text string) error
}

// SeenStore optionally persists the per-source seen link sets across restarts.
type SeenStore interface {
	Load(ctx context.Context, source string) ([]string, bool, error)
	Replace(ctx context.Context, source string, links []string) error
	Delete(ctx context.Context, source string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// RawFetcher downloads the HTML for a URL.
type RawFetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
}
