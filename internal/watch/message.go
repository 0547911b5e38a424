package watch

import (
	"fmt"
	"strings"
)

// FormatMessage renders the notification text for a new listing. A non-empty pingRole is
// appended on its own line as a role mention.
func FormatMessage(category string, l Listing, pingRole string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**New deal in %s!** 🔥\n\n", category)
	fmt.Fprintf(&b, "📌 **%s**\n", l.Title)
	fmt.Fprintf(&b, "💰 **€%d**\n", l.Price)
	fmt.Fprintf(&b, "🔗 [Check Advertisement](%s)", l.Link)
	if mention := RoleMention(pingRole); mention != "" {
		b.WriteString("\n")
		b.WriteString(mention)
	}
	return b.String()
}

// RoleMention turns a role id into a mention token. Values that already look like a
// mention are returned unchanged.
func RoleMention(roleID string) string {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return ""
	}
	if strings.HasPrefix(roleID, "<@&") {
		return roleID
	}
	return "<@&" + roleID + ">"
}
