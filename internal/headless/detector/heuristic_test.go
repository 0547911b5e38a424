package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dealwatch/internal/watch"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(watch.RawPage{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := watch.RawPage{
		StatusCode: 200,
		Body:       []byte(`<div id="__next"></div>`),
	}
	require.True(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	page := watch.RawPage{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_MissingListingSelector(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, "div.hz-Listing-listview-content")
	rendered := `<html><body><h1>Fietsen</h1>` + strings.Repeat("<p>filler</p>", 20) +
		`<div class="hz-Listing-listview-content"></div></body></html>`
	shell := `<html><body><h1>Fietsen</h1>` + strings.Repeat("<p>filler</p>", 20) + `</body></html>`

	require.False(t, h.ShouldPromote(watch.RawPage{StatusCode: 200, Body: []byte(rendered)}))
	require.True(t, h.ShouldPromote(watch.RawPage{StatusCode: 200, Body: []byte(shell)}))
}

func TestHeuristic_ShouldPromote_DisabledForNon200AndHeadless(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(watch.RawPage{StatusCode: 404, Body: []byte("not found")}))
	require.False(t, h.ShouldPromote(watch.RawPage{StatusCode: 200, UsedHeadless: true}))
}
