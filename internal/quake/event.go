package quake

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Event is one normalized earthquake entry from the upstream feed.
//
// ID is the globally unique USGS event id (e.g. "us1000abcd") and is the
// identity used for deduplication and claims.
type Event struct {
	ID           string
	Magnitude    float64
	Place        string
	Title        string
	Time         int64 // event time, unix millis UTC
	Updated      int64 // last upstream update, unix millis UTC
	URL          string
	Detail       string
	Status       string
	Tsunami      int
	Significance int
	Net          string
	Code         string
	Latitude     float64
	Longitude    float64
	DepthKm      float64
}

// Record is the persisted form of an Event.
//
// SentAt and ReservedAt are unix millis UTC; zero means absent. A record with
// SentAt set is terminal and never mutated or deleted again. ReservedAt marks
// an in-flight claim and only exists transiently on non-terminal records.
type Record struct {
	Event
	SentAt     int64
	ReservedAt int64
}

// OccurredAt returns the event time as a UTC instant.
func (e Event) OccurredAt() time.Time { return time.UnixMilli(e.Time).UTC() }

// NormalizePlace capitalizes the first rune of a free-text place name and
// substitutes "Unknown" for empty ones, matching the feed's display rules.
func NormalizePlace(place string) string {
	if place == "" {
		return "Unknown"
	}
	r, size := utf8.DecodeRuneInString(place)
	if r == utf8.RuneError && size <= 1 {
		return place
	}
	return string(unicode.ToUpper(r)) + place[size:]
}

// NormalizeLongitude wraps a longitude into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// SeverityBadge maps a magnitude to the badge used in captions and titles.
func SeverityBadge(magnitude float64) string {
	switch {
	case magnitude < 0:
		return "❓"
	case magnitude < 2.0:
		return "🟢"
	case magnitude < 4.0:
		return "🟡"
	case magnitude < 5.0:
		return "🟠"
	case magnitude < 6.0:
		return "🔴"
	case magnitude < 7.0:
		return "💥"
	case magnitude < 8.0:
		return "🌋"
	case magnitude < 9.0:
		return "🌎💥"
	default:
		return "🌎💥🌊"
	}
}

// FormatCoordinates renders "12.3456°N, 7.8901°W" style coordinates.
func FormatCoordinates(lat, lon float64) string {
	latDir := "N"
	if lat < 0 {
		latDir = "S"
	}
	lonDir := "E"
	if lon < 0 {
		lonDir = "W"
	}
	return fmt.Sprintf("%.4f°%s, %.4f°%s", abs(lat), latDir, abs(lon), lonDir)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// titleCase uppercases the first letter of each space-separated word.
// Status values from the feed are single lowercase words ("automatic",
// "reviewed"), so this stays deliberately simple.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
