package watch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterIsSpam(t *testing.T) {
	t.Parallel()

	f := NewFilter(DefaultBlocklist)
	base := Listing{Title: "Fiets", Link: "https://www.marktplaats.nl/v/1", Description: "mooie fiets"}

	cases := []struct {
		name   string
		mutate func(l Listing) Listing
		spam   bool
	}{
		{"clean listing", func(l Listing) Listing { return l }, false},
		{"empty title", func(l Listing) Listing { l.Title = "  "; return l }, true},
		{"empty link", func(l Listing) Listing { l.Link = ""; return l }, true},
		{"featured", func(l Listing) Listing { l.Featured = true; return l }, true},
		{"shop", func(l Listing) Listing { l.Description = "bezoek onze winkel"; return l }, true},
		{"invoice", func(l Listing) Listing { l.Description = "met factuur"; return l }, true},
		{"brand new", func(l Listing) Listing { l.Description = "gloednieuw in doos"; return l }, true},
		{"uppercase description", func(l Listing) Listing { l.Description = "WINKEL"; return l }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.spam, f.IsSpam(tc.mutate(base)))
		})
	}
}

func TestNewFilterNormalisesTerms(t *testing.T) {
	t.Parallel()

	f := NewFilter([]string{" Shop ", "", "shop", "RECEIPT"})
	require.Equal(t, []string{"shop", "receipt"}, f.Terms())
}

func TestWithinBudget(t *testing.T) {
	t.Parallel()

	require.True(t, WithinBudget(150, nil))
	require.True(t, WithinBudget(100, IntPtr(100)))
	require.False(t, WithinBudget(150, IntPtr(100)))
	zero := 0
	require.True(t, WithinBudget(150, &zero), "zero budget means unlimited")
}

func TestFilterEligibleCombinesPredicates(t *testing.T) {
	t.Parallel()

	f := NewFilter(nil)
	l := Listing{Title: "Lamp", Link: "https://example.com/a", Price: 40}
	require.True(t, f.Eligible(l, IntPtr(50)))
	require.False(t, f.Eligible(l, IntPtr(30)))
	l.Featured = true
	require.False(t, f.Eligible(l, nil))
}
