package quake

import (
	"fmt"
	"html"
	"strings"
)

const captionTimeLayout = "02 Jan 2006, 15:04 UTC"

// Caption builds the HTML caption sent alongside the rendered map.
//
// seq is the 1-based position of this event among all delivered events; it is
// shown next to the id so readers can tell how many quakes the channel has
// carried so far.
func Caption(ev Event, seq int64) string {
	title := ev.Title
	if title == "" {
		title = ev.Place
	}
	if title == "" {
		title = "No title found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", SeverityBadge(ev.Magnitude), html.EscapeString(title))
	fmt.Fprintf(&b, "ID: <code>%s</code> | <code>%d</code>\n", html.EscapeString(ev.ID), seq)
	fmt.Fprintf(&b, "Time: <b>%s</b>\n", ev.OccurredAt().Format(captionTimeLayout))
	fmt.Fprintf(&b, "Status: <i><b>%s</b></i>  |  <b><a href=\"%s\">More Details</a></b>",
		html.EscapeString(titleCase(ev.Status)), ev.URL)
	return b.String()
}
