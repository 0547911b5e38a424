package watch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatMessage(t *testing.T) {
	t.Parallel()

	l := Listing{Title: "Gazelle", Price: 120, Link: "https://www.marktplaats.nl/v/fiets/m1"}
	want := "**New deal in Fietsen!** 🔥\n\n📌 **Gazelle**\n💰 **€120**\n🔗 [Check Advertisement](https://www.marktplaats.nl/v/fiets/m1)"
	require.Equal(t, want, FormatMessage("Fietsen", l, ""))
	require.Equal(t, want+"\n<@&42>", FormatMessage("Fietsen", l, "42"))
}

func TestRoleMention(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", RoleMention("  "))
	require.Equal(t, "<@&7>", RoleMention("7"))
	require.Equal(t, "<@&7>", RoleMention("<@&7>"))
}
