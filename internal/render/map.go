// Package render draws the static epicenter map that accompanies each
// notification. The output is cosmetic; delivery correctness never depends
// on what the map looks like.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"quakebot/internal/quake"
)

const (
	defaultZoomDeg = 7.19
	defaultWidth   = 1200
	defaultHeight  = 900
	headerHeight   = 96
	gridStepDeg    = 2.0
)

var (
	oceanColor  = color.NRGBA{R: 0xc4, G: 0xe6, B: 0xff, A: 0xff}
	headerColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	gridColor   = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xb0}
	markerColor = color.NRGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}
	textColor   = color.NRGBA{A: 0xff}
)

// Options tune the rendered map. Zero values fall back to defaults.
type Options struct {
	ZoomDeg float64 // half-width of the view in degrees of longitude
	Width   int
	Height  int
}

// Renderer writes one PNG per event into OutDir, keyed by event id.
type Renderer struct {
	outDir string
	opts   Options
}

func New(outDir string, opts Options) (*Renderer, error) {
	if opts.ZoomDeg <= 0 {
		opts.ZoomDeg = defaultZoomDeg
	}
	if opts.Width <= 0 {
		opts.Width = defaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = defaultHeight
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &Renderer{outDir: outDir, opts: opts}, nil
}

// Path returns the deterministic artifact path for an event id.
func (r *Renderer) Path(id string) string {
	return filepath.Join(r.outDir, id+".png")
}

// Render draws the map for ev and returns the written file path.
func (r *Renderer) Render(ctx context.Context, ev quake.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	lon := quake.NormalizeLongitude(ev.Longitude)
	lat := ev.Latitude
	zoom := r.opts.ZoomDeg

	// View extent: lon±zoom, lat±0.75·zoom, event at the center.
	minLon, maxLon := lon-zoom, lon+zoom
	minLat, maxLat := lat-zoom*0.75, lat+zoom*0.75

	img := imaging.New(r.opts.Width, r.opts.Height, oceanColor)
	mapTop := headerHeight
	mapH := r.opts.Height - mapTop

	// Header band for title and info lines.
	fillRect(img, 0, 0, r.opts.Width, mapTop, headerColor)

	toX := func(l float64) int {
		return int((l - minLon) / (maxLon - minLon) * float64(r.opts.Width))
	}
	toY := func(l float64) int {
		return mapTop + int((maxLat-l)/(maxLat-minLat)*float64(mapH))
	}

	// Graticule with labeled meridians and parallels.
	d := &font.Drawer{Dst: img, Src: image.NewUniform(gridColor), Face: basicfont.Face7x13}
	for gl := math.Ceil(minLon/gridStepDeg) * gridStepDeg; gl <= maxLon; gl += gridStepDeg {
		x := toX(gl)
		vline(img, x, mapTop, r.opts.Height, gridColor)
		label := fmt.Sprintf("%.0f°", quake.NormalizeLongitude(gl))
		d.Dot = fixed.P(x+3, r.opts.Height-6)
		d.DrawString(label)
	}
	for gl := math.Ceil(minLat/gridStepDeg) * gridStepDeg; gl <= maxLat; gl += gridStepDeg {
		y := toY(gl)
		hline(img, 0, r.opts.Width, y, gridColor)
		d.Dot = fixed.P(4, y-3)
		d.DrawString(fmt.Sprintf("%.0f°", gl))
	}

	// Epicenter marker.
	fillCircle(img, toX(lon), toY(lat), 10, markerColor)

	// Title and info lines, centered in the header.
	title := ev.Place
	if title == "" {
		title = "Unknown Location"
	}
	drawCenteredBold(img, title, r.opts.Width/2, 24)
	lines := []string{
		fmt.Sprintf("Magnitude: %.1f | Depth: %.1f km", ev.Magnitude, ev.DepthKm),
		quake.FormatCoordinates(lat, lon),
		ev.OccurredAt().Format("2006-01-02 15:04:05 UTC"),
	}
	y := 46
	for _, line := range lines {
		drawCentered(img, line, r.opts.Width/2, y)
		y += 18
	}

	path := r.Path(ev.ID)
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("render save: %w", err)
	}
	return path, nil
}

func drawCentered(img *image.NRGBA, s string, cx, y int) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(textColor), Face: basicfont.Face7x13}
	w := d.MeasureString(s).Round()
	d.Dot = fixed.P(cx-w/2, y)
	d.DrawString(s)
}

// drawCenteredBold fakes a bold face by double-striking one pixel apart.
func drawCenteredBold(img *image.NRGBA, s string, cx, y int) {
	drawCentered(img, s, cx, y)
	drawCentered(img, s, cx+1, y)
}

func fillRect(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func vline(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}

func hline(img *image.NRGBA, x0, x1, y int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func fillCircle(img *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				img.SetNRGBA(cx+dx, cy+dy, c)
			}
		}
	}
}
