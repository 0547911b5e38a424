package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.Equal(t, 1, fetcher.cfg.MaxParallel)
	require.Equal(t, 45*time.Second, fetcher.cfg.NavigationTimeout)
	require.Equal(t, "body", fetcher.cfg.WaitSelector)
}

func TestNewChromedpKeepsOverrides(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{
		MaxParallel:       3,
		NavigationTimeout: time.Second,
		WaitSelector:      "div.hz-Listing-listview-content",
	})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.Equal(t, 3, fetcher.cfg.MaxParallel)
	require.Equal(t, time.Second, fetcher.cfg.NavigationTimeout)
	require.Equal(t, "div.hz-Listing-listview-content", fetcher.cfg.WaitSelector)
}

func TestFetchWaitsForFreeSlot(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.NoError(t, fetcher.slots.Acquire(context.Background(), 1))
	t.Cleanup(func() { fetcher.slots.Release(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fetcher.Fetch(ctx, "https://www.marktplaats.nl/l/fietsen/")
	require.ErrorContains(t, err, "headless slot wait canceled")
}

func TestDocumentStatus(t *testing.T) {
	t.Parallel()

	status, err := documentStatus(&network.Response{Status: 200})
	require.NoError(t, err)
	require.Equal(t, 200, status)

	status, err = documentStatus(&network.Response{Status: 404})
	require.ErrorContains(t, err, "status 404")
	require.Equal(t, 404, status)

	_, err = documentStatus(nil)
	require.Error(t, err)
}
