package watch

import "time"

// UnknownCategory is the label reported when a page could not be fetched or parsed.
const UnknownCategory = "Unknown"

// TrackedSource is one category page being watched, keyed by URL.
type TrackedSource struct {
	URL       string `json:"-"`
	ChannelID string `json:"channelId"`
	Budget    *int   `json:"budget"`
	Category  string `json:"category"`
}

// HasBudget reports whether a positive price cap is configured.
func (s TrackedSource) HasBudget() bool {
	return s.Budget != nil && *s.Budget > 0
}

// Listing is a single advertisement extracted from a category page.
type Listing struct {
	Title       string
	Price       int
	Link        string
	Featured    bool
	Description string
}

// Page is the result of fetching one category page. A failed fetch is represented by
// an empty Listings slice and UnknownCategory, never by an error.
type Page struct {
	Listings []Listing
	Category string
}

// Delivery is the outcome of sending one notification.
type Delivery struct {
	ChannelID string
	Link      string
	Err       error
}

// OK reports whether the delivery succeeded.
func (d Delivery) OK() bool {
	return d.Err == nil
}

// SweepResult summarises one sweep of a single source.
type SweepResult struct {
	Source     string
	Fetched    int
	Notified   int
	Failed     int
	SweptAt    time.Time
	Duration   time.Duration
	EmptyFetch bool
	Deliveries []Delivery
}

// SourceSummary is what the list command exposes for a tracked source.
type SourceSummary struct {
	Category string `json:"category"`
	Budget   *int   `json:"budget"`
}

// IntPtr returns a pointer to v, or nil when v is not positive.
func IntPtr(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// RawPage is the HTTP-level result of loading a page, before extraction.
type RawPage struct {
	URL          string
	StatusCode   int
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
