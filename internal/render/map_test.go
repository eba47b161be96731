package render

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"quakebot/internal/quake"
)

func TestRenderWritesDecodablePNG(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, Options{Width: 300, Height: 240})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ev := quake.Event{
		ID:        "us1000abcd",
		Place:     "Offshore testing grounds",
		Magnitude: 5.4,
		DepthKm:   18.2,
		Latitude:  35.2,
		Longitude: 139.7,
		Time:      1735689600000,
	}
	path, err := r.Render(context.Background(), ev)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if path != filepath.Join(dir, "us1000abcd.png") {
		t.Fatalf("unexpected artifact path %q", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("artifact is not a valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 240 {
		t.Fatalf("unexpected dimensions %v", img.Bounds())
	}
}

func TestRenderAntimeridian(t *testing.T) {
	r, err := New(t.TempDir(), Options{Width: 120, Height: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Longitudes past 180 must be wrapped, not plotted off-canvas.
	_, err = r.Render(context.Background(), quake.Event{ID: "wrap", Longitude: 190.5, Latitude: -12})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestRenderCancelledContext(t *testing.T) {
	r, err := New(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, quake.Event{ID: "x"}); err == nil {
		t.Fatal("expected context error")
	}
}
