package watch

import "sort"

// DiffEngine remembers, per source, the links observed on the most recent non-empty sweep.
// It is not safe for concurrent use; the tracker serialises access.
type DiffEngine struct {
	filter *Filter
	seen   map[string]map[string]struct{}
}

// NewDiffEngine creates an engine using filter for eligibility decisions.
func NewDiffEngine(filter *Filter) *DiffEngine {
	if filter == nil {
		filter = NewFilter(nil)
	}
	return &DiffEngine{
		filter: filter,
		seen:   make(map[string]map[string]struct{}),
	}
}

// Sweep returns the listings worth announcing for source, in input order, and replaces the
// source's seen set with every link in listings. Filtered-out listings are marked seen too.
// An empty input is a no-op so a transient blank page never wipes history.
func (e *DiffEngine) Sweep(source string, budget *int, listings []Listing) []Listing {
	if len(listings) == 0 {
		return nil
	}
	previous := e.seen[source]
	next := make(map[string]struct{}, len(listings))
	var notifiable []Listing
	for _, l := range listings {
		_, seenBefore := previous[l.Link]
		_, seenNow := next[l.Link]
		if !seenBefore && !seenNow && e.filter.Eligible(l, budget) {
			notifiable = append(notifiable, l)
		}
		next[l.Link] = struct{}{}
	}
	e.seen[source] = next
	return notifiable
}

// Primed reports whether source has a seen set.
func (e *DiffEngine) Primed(source string) bool {
	_, ok := e.seen[source]
	return ok
}

// Prime installs a previously persisted seen set for source.
func (e *DiffEngine) Prime(source string, links []string) {
	set := make(map[string]struct{}, len(links))
	for _, link := range links {
		set[link] = struct{}{}
	}
	e.seen[source] = set
}

// Forget drops the seen set for source.
func (e *DiffEngine) Forget(source string) {
	delete(e.seen, source)
}

// Seen returns the sorted seen links for source.
func (e *DiffEngine) Seen(source string) []string {
	set, ok := e.seen[source]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for link := range set {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}
