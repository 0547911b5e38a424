// Package tracking keeps the durable mapping from tracked category URL to its configuration.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

// ErrNotFound is returned when no tracked source matches a removal request.
var ErrNotFound = errors.New("tracked source not found")

// Backend reads and writes the serialised mapping. Read must return an error wrapping
// fs.ErrNotExist when nothing has been persisted yet.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Store is an insertion-ordered set of tracked sources. It is not safe for concurrent
// use; callers serialise access.
type Store struct {
	backend Backend
	logger  *zap.Logger
	order   []string
	entries map[string]watch.TrackedSource
}

// New creates an empty Store persisted through backend.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		entries: make(map[string]watch.TrackedSource),
	}
}

// Load replaces the in-memory mapping with the persisted one. A missing snapshot yields an
// empty store. A malformed snapshot is logged and treated as empty rather than failing startup.
func (s *Store) Load(ctx context.Context) error {
	s.reset()
	data, err := s.backend.Read(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no tracking snapshot found; starting empty")
			return nil
		}
		return fmt.Errorf("read tracking snapshot: %w", err)
	}
	sources, err := decode(data)
	if err != nil {
		s.logger.Warn("tracking snapshot is malformed; starting with an empty store", zap.Error(err))
		return nil
	}
	for _, src := range sources {
		s.Upsert(src)
	}
	s.logger.Info("tracking snapshot loaded", zap.Int("sources", len(s.order)))
	return nil
}

// Save persists the full mapping, overwriting any previous snapshot.
func (s *Store) Save(ctx context.Context) error {
	data, err := encode(s.List())
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("write tracking snapshot: %w", err)
	}
	return nil
}

// Upsert inserts src or overwrites the entry with the same URL, keeping its position.
func (s *Store) Upsert(src watch.TrackedSource) {
	if _, exists := s.entries[src.URL]; !exists {
		s.order = append(s.order, src.URL)
	}
	s.entries[src.URL] = cloneSource(src)
}

// RemoveByLabel deletes the first source, in insertion order, whose category equals label.
func (s *Store) RemoveByLabel(label string) (watch.TrackedSource, error) {
	for i, url := range s.order {
		src := s.entries[url]
		if src.Category != label {
			continue
		}
		s.order = append(s.order[:i:i], s.order[i+1:]...)
		delete(s.entries, url)
		return src, nil
	}
	return watch.TrackedSource{}, fmt.Errorf("remove %q: %w", label, ErrNotFound)
}

// Get returns the source tracked under url.
func (s *Store) Get(url string) (watch.TrackedSource, bool) {
	src, ok := s.entries[url]
	if !ok {
		return watch.TrackedSource{}, false
	}
	return cloneSource(src), true
}

// List returns every source in insertion order.
func (s *Store) List() []watch.TrackedSource {
	out := make([]watch.TrackedSource, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, cloneSource(s.entries[url]))
	}
	return out
}

// Len returns the number of tracked sources.
func (s *Store) Len() int {
	return len(s.order)
}

func (s *Store) reset() {
	s.order = nil
	s.entries = make(map[string]watch.TrackedSource)
}

func cloneSource(src watch.TrackedSource) watch.TrackedSource {
	if src.Budget != nil {
		budget := *src.Budget
		src.Budget = &budget
	}
	return src
}

// Snapshot is a point-in-time copy of a Store's contents.
type Snapshot struct {
	order   []string
	entries map[string]watch.TrackedSource
}

// Snapshot copies the current mapping so a failed Save can be undone with Restore.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		order:   append([]string(nil), s.order...),
		entries: make(map[string]watch.TrackedSource, len(s.entries)),
	}
	for url, src := range s.entries {
		snap.entries[url] = cloneSource(src)
	}
	return snap
}

// Restore puts back the mapping captured by Snapshot, order included.
func (s *Store) Restore(snap Snapshot) {
	s.order = append([]string(nil), snap.order...)
	s.entries = make(map[string]watch.TrackedSource, len(snap.entries))
	for url, src := range snap.entries {
		s.entries[url] = cloneSource(src)
	}
}
