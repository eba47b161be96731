package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quakebot/internal/feed"
	"quakebot/internal/metrics"
	"quakebot/internal/pipeline"
	"quakebot/internal/quake"
	"quakebot/pkg/logx"
)

type fakeStore struct {
	mu       sync.Mutex
	known    map[string]struct{}
	released []string
	loadErr  error
}

func (s *fakeStore) IsDelivered(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[id]
	return ok, nil
}

func (s *fakeStore) DeliveredIDs(ctx context.Context) (map[string]struct{}, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.known))
	for id := range s.known {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *fakeStore) DeliveredCount(ctx context.Context) (int64, error) {
	return int64(len(s.known)), nil
}

func (s *fakeStore) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	return true, nil
}

func (s *fakeStore) Commit(ctx context.Context, ev quake.Event, now time.Time) error {
	return nil
}

func (s *fakeStore) ReleaseClaim(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeFetcher struct {
	events  []quake.Event
	err     error
	windows []feed.Window
}

func (f *fakeFetcher) Fetch(ctx context.Context, w feed.Window) ([]quake.Event, error) {
	f.windows = append(f.windows, w)
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeProcessor struct {
	calls   int
	process func(ev quake.Event, held map[string]struct{}) (pipeline.Outcome, error)
}

func (p *fakeProcessor) Process(ctx context.Context, ev quake.Event, known, held map[string]struct{}) (pipeline.Outcome, error) {
	p.calls++
	if p.process != nil {
		return p.process(ev, held)
	}
	return pipeline.OutcomeSent, nil
}

func events(ids ...string) []quake.Event {
	out := make([]quake.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, quake.Event{ID: id, Place: "Somewhere", Magnitude: 5})
	}
	return out
}

func newTestRunner(cfg Config, st *fakeStore, f *fakeFetcher, p *fakeProcessor) *Runner {
	r := New(cfg, st, f, p, logx.Nop(), metrics.NewSet())
	r.sdNotify = func(string) {}
	return r
}

func TestRunProcessesAllCandidates(t *testing.T) {
	st := &fakeStore{known: map[string]struct{}{}}
	f := &fakeFetcher{events: events("a", "b", "c")}
	p := &fakeProcessor{}
	r := newTestRunner(Config{MaxRunTime: time.Minute}, st, f, p)

	// Advance the clock past the budget after the first cycle so Run exits.
	base := time.Now()
	ticks := 0
	r.now = func() time.Time {
		ticks++
		if ticks > 10 {
			return base.Add(2 * time.Minute)
		}
		return base
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.calls < 3 {
		t.Fatalf("processed %d candidates, want at least 3", p.calls)
	}
	if len(f.windows) == 0 || f.windows[0] != feed.WindowWeek {
		t.Fatalf("time-boxed mode fetched window %v, want week", f.windows)
	}
}

func TestRunLocalUsesMonthWindow(t *testing.T) {
	st := &fakeStore{known: map[string]struct{}{}}
	f := &fakeFetcher{events: events("a")}
	p := &fakeProcessor{}
	r := newTestRunner(Config{Local: true}, st, f, p)

	ctx, cancel := context.WithCancel(context.Background())
	p.process = func(ev quake.Event, held map[string]struct{}) (pipeline.Outcome, error) {
		cancel()
		return pipeline.OutcomeSent, nil
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.windows[0] != feed.WindowMonth {
		t.Fatalf("continuous mode fetched window %q, want month", f.windows[0])
	}
}

func TestRunStopsAfterConsecutiveFailures(t *testing.T) {
	st := &fakeStore{known: map[string]struct{}{}, loadErr: errors.New("db down")}
	f := &fakeFetcher{}
	p := &fakeProcessor{}
	r := newTestRunner(Config{Local: true}, st, f, p)

	err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil, want failure after repeated cycle errors")
	}
	if !errors.Is(err, st.loadErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, st.loadErr)
	}
}

func TestRunRecoversCountAfterSuccess(t *testing.T) {
	st := &fakeStore{known: map[string]struct{}{}}
	f := &fakeFetcher{events: events("a")}
	p := &fakeProcessor{}
	r := newTestRunner(Config{Local: true}, st, f, p)

	// Fail twice, succeed once, fail twice more, then cancel: the success in
	// the middle must reset the counter so Run does not give up.
	cycle := 0
	ctx, cancel := context.WithCancel(context.Background())
	origErr := errors.New("flaky")
	p.process = func(ev quake.Event, held map[string]struct{}) (pipeline.Outcome, error) {
		return pipeline.OutcomeSent, nil
	}
	realFetch := f.events
	fetches := 0
	r.feed = fetchFunc(func(ctx context.Context, w feed.Window) ([]quake.Event, error) {
		fetches++
		cycle++
		switch cycle {
		case 1, 2, 4, 5:
			return nil, origErr
		case 6:
			cancel()
			return realFetch, nil
		default:
			return realFetch, nil
		}
	})

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run = %v, want nil: success should reset the failure count", err)
	}
	if fetches < 6 {
		t.Fatalf("ran %d cycles, want at least 6", fetches)
	}
}

type fetchFunc func(ctx context.Context, w feed.Window) ([]quake.Event, error)

func (f fetchFunc) Fetch(ctx context.Context, w feed.Window) ([]quake.Event, error) {
	return f(ctx, w)
}

func TestRunCycleReleasesHeldClaimsOnPanic(t *testing.T) {
	st := &fakeStore{known: map[string]struct{}{}}
	f := &fakeFetcher{events: events("a", "b")}
	p := &fakeProcessor{}
	p.process = func(ev quake.Event, held map[string]struct{}) (pipeline.Outcome, error) {
		held[ev.ID] = struct{}{}
		if ev.ID == "b" {
			panic("boom")
		}
		return pipeline.OutcomeSent, nil
	}
	r := newTestRunner(Config{Local: true}, st, f, p)

	err := r.safeCycle(context.Background(), time.Now())
	if err == nil {
		t.Fatal("safeCycle swallowed the panic, want an error")
	}
	if len(st.released) != 2 {
		t.Fatalf("released %v, want both held claims released", st.released)
	}
}

func TestPruneArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.png")
	fresh := filepath.Join(dir, "fresh.png")
	other := filepath.Join(dir, "keep.txt")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}

	r := newTestRunner(Config{
		Local:          true,
		MapDir:         dir,
		PruneRetention: 24 * time.Hour,
	}, &fakeStore{}, &fakeFetcher{}, &fakeProcessor{})
	r.pruneArtifacts()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("stale png not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh png removed")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatal("non-png file removed")
	}
}
