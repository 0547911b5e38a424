// Package watch holds the domain types shared by the tracker, the fetchers and the
// notification sinks, together with the listing filter and the diff engine that decide
// which listings are new enough to announce.
package watch
