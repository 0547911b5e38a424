package tracking

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

type memoryBackend struct {
	data     []byte
	present  bool
	readErr  error
	writeErr error
	writes   int
}

func (b *memoryBackend) Read(context.Context) ([]byte, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	if !b.present {
		return nil, fmt.Errorf("snapshot: %w", fs.ErrNotExist)
	}
	return append([]byte(nil), b.data...), nil
}

func (b *memoryBackend) Write(_ context.Context, data []byte) error {
	if b.writeErr != nil {
		return b.writeErr
	}
	b.writes++
	b.data = append([]byte(nil), data...)
	b.present = true
	return nil
}

func src(url, category string, budget int) watch.TrackedSource {
	return watch.TrackedSource{URL: url, ChannelID: "chan-" + category, Budget: watch.IntPtr(budget), Category: category}
}

func TestLoadMissingSnapshotIsEmpty(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, zap.NewNop())
	require.NoError(t, store.Load(context.Background()))
	require.Zero(t, store.Len())
}

func TestLoadMalformedSnapshotRecoversEmpty(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"{not json", `["a","b"]`, `{"u": 5}`, `{"u": {}} trailing`} {
		backend := &memoryBackend{data: []byte(payload), present: true}
		store := New(backend, zap.NewNop())
		store.Upsert(src("https://stale.example", "Stale", 0))

		require.NoError(t, store.Load(context.Background()), payload)
		require.Zero(t, store.Len(), payload)
		require.Equal(t, payload, string(backend.data), "malformed payload is left untouched")
	}
}

func TestLoadPropagatesIOErrors(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{readErr: errors.New("permission denied")}, zap.NewNop())
	err := store.Load(context.Background())
	require.ErrorContains(t, err, "permission denied")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	store := New(backend, zap.NewNop())
	store.Upsert(src("https://www.marktplaats.nl/l/fietsen/", "Fietsen", 250))
	store.Upsert(src("https://www.marktplaats.nl/l/audio/", "Audio", 0))
	store.Upsert(src("https://www.marktplaats.nl/l/boeken/", "Boeken", 15))
	require.NoError(t, store.Save(context.Background()))

	reloaded := New(backend, zap.NewNop())
	require.NoError(t, reloaded.Load(context.Background()))
	require.Equal(t, store.List(), reloaded.List())

	// A second save of the reloaded store is byte-identical.
	first := string(backend.data)
	require.NoError(t, reloaded.Save(context.Background()))
	require.Equal(t, first, string(backend.data))
}

func TestSaveWireFormat(t *testing.T) {
	t.Parallel()

	backend := &memoryBackend{}
	store := New(backend, zap.NewNop())
	store.Upsert(src("https://b.example/", "B", 100))
	store.Upsert(src("https://a.example/", "A", 0))
	require.NoError(t, store.Save(context.Background()))

	want := `{
  "https://b.example/": {
    "channelId": "chan-B",
    "budget": 100,
    "category": "B"
  },
  "https://a.example/": {
    "channelId": "chan-A",
    "budget": null,
    "category": "A"
  }
}
`
	require.Equal(t, want, string(backend.data))
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, nil)
	store.Upsert(src("https://a.example/", "A", 10))
	store.Upsert(src("https://b.example/", "B", 20))
	store.Upsert(src("https://a.example/", "A2", 30))

	list := store.List()
	require.Len(t, list, 2)
	require.Equal(t, "A2", list[0].Category)
	require.Equal(t, 30, *list[0].Budget)
	require.Equal(t, "B", list[1].Category)
}

func TestRemoveByLabel(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, nil)
	store.Upsert(src("https://a.example/", "Shared", 10))
	store.Upsert(src("https://b.example/", "Shared", 20))
	store.Upsert(src("https://c.example/", "Other", 0))

	removed, err := store.RemoveByLabel("Shared")
	require.NoError(t, err)
	require.Equal(t, "https://a.example/", removed.URL, "first match in insertion order wins")
	require.Equal(t, 2, store.Len())

	_, err = store.RemoveByLabel("Missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, store.Len())

	_, ok := store.Get("https://b.example/")
	require.True(t, ok)
}

func TestSnapshotRestore(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, nil)
	store.Upsert(src("https://a.example/", "A", 10))
	store.Upsert(src("https://b.example/", "B", 20))
	store.Upsert(src("https://c.example/", "C", 30))
	snap := store.Snapshot()

	_, err := store.RemoveByLabel("B")
	require.NoError(t, err)
	store.Upsert(src("https://a.example/", "A2", 99))
	store.Upsert(src("https://d.example/", "D", 40))

	store.Restore(snap)
	list := store.List()
	require.Len(t, list, 3)
	require.Equal(t, []string{"A", "B", "C"}, []string{list[0].Category, list[1].Category, list[2].Category})
	require.Equal(t, 10, *list[0].Budget)
	_, ok := store.Get("https://d.example/")
	require.False(t, ok)
}

func TestListReturnsCopies(t *testing.T) {
	t.Parallel()

	store := New(&memoryBackend{}, nil)
	store.Upsert(src("https://a.example/", "A", 10))
	list := store.List()
	*list[0].Budget = 999
	got, _ := store.Get("https://a.example/")
	require.Equal(t, 10, *got.Budget)
}

func TestDecodeDuplicateKeysKeepFirstPosition(t *testing.T) {
	t.Parallel()

	sources, err := decode([]byte(`{"x":{"channelId":"1","budget":null,"category":"X"},"y":{"channelId":"2","budget":5,"category":"Y"},"x":{"channelId":"3","budget":null,"category":"X2"}}`))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Equal(t, "X2", sources[0].Category)
	require.Equal(t, "Y", sources[1].Category)
}
