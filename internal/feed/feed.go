package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"quakebot/internal/quake"
)

// DefaultBaseURL is the USGS summary feed root.
const DefaultBaseURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"

// Window selects how far back the feed reaches.
type Window string

const (
	// WindowWeek is the shorter feed used for time-boxed runs.
	WindowWeek Window = "week"
	// WindowMonth is the longer feed used in continuous/local mode.
	WindowMonth Window = "month"
)

// Client fetches and normalizes the USGS GeoJSON summary feed.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a feed client. baseURL may be empty for the public feed;
// tests point it at a local server.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type geoFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Type    string   `json:"type"`
		Place   string   `json:"place"`
		Mag     *float64 `json:"mag"`
		Time    int64    `json:"time"`
		Updated int64    `json:"updated"`
		URL     string   `json:"url"`
		Detail  string   `json:"detail"`
		Status  string   `json:"status"`
		Tsunami int      `json:"tsunami"`
		Sig     int      `json:"sig"`
		Net     string   `json:"net"`
		Code    string   `json:"code"`
		Title   string   `json:"title"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
	} `json:"geometry"`
}

type geoFeed struct {
	Features []geoFeature `json:"features"`
}

// Fetch returns candidate events for the given window: earthquake-typed
// entries only, place names normalized, sorted by event time ascending.
func (c *Client) Fetch(ctx context.Context, w Window) ([]quake.Event, error) {
	url := fmt.Sprintf("%s/2.5_%s.geojson", c.baseURL, w)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("feed fetch: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var raw geoFeed
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("feed decode: %w", err)
	}

	events := make([]quake.Event, 0, len(raw.Features))
	for _, f := range raw.Features {
		if f.Properties.Type != "earthquake" || f.ID == "" {
			continue
		}
		ev := quake.Event{
			ID:           f.ID,
			Place:        quake.NormalizePlace(f.Properties.Place),
			Title:        f.Properties.Title,
			Time:         f.Properties.Time,
			Updated:      f.Properties.Updated,
			URL:          f.Properties.URL,
			Detail:       f.Properties.Detail,
			Status:       f.Properties.Status,
			Tsunami:      f.Properties.Tsunami,
			Significance: f.Properties.Sig,
			Net:          f.Properties.Net,
			Code:         f.Properties.Code,
		}
		if f.Properties.Mag != nil {
			ev.Magnitude = *f.Properties.Mag
		}
		if len(f.Geometry.Coordinates) >= 3 {
			ev.Longitude = f.Geometry.Coordinates[0]
			ev.Latitude = f.Geometry.Coordinates[1]
			ev.DepthKm = f.Geometry.Coordinates[2]
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return events, nil
}
