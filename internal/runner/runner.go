// Package runner orchestrates run cycles: load the delivered snapshot, fetch
// candidates, drive each through the pipeline, and guarantee that every claim
// this instance holds is released on every exit path.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"quakebot/internal/feed"
	"quakebot/internal/metrics"
	"quakebot/internal/pipeline"
	"quakebot/internal/quake"
	"quakebot/internal/store"
	"quakebot/pkg/logx"
)

// maxConsecutiveFailures stops the outer loop once this many cycles in a row
// end with an unhandled error.
const maxConsecutiveFailures = 3

// Fetcher supplies ordered candidate events.
type Fetcher interface {
	Fetch(ctx context.Context, w feed.Window) ([]quake.Event, error)
}

// Processor attempts delivery of one candidate.
type Processor interface {
	Process(ctx context.Context, ev quake.Event, known, held map[string]struct{}) (pipeline.Outcome, error)
}

// Config controls run modes.
type Config struct {
	// Local disables the wall-clock budget and selects the longer feed
	// window (continuous mode).
	Local bool
	// MaxRunTime is the per-invocation budget in time-boxed mode.
	MaxRunTime time.Duration
	// MapDir and the prune settings control artifact cleanup in
	// continuous mode.
	MapDir         string
	PruneSchedule  string
	PruneRetention time.Duration
}

// Runner drives the fetch/process loop.
type Runner struct {
	cfg   Config
	store store.Store
	feed  Fetcher
	pipe  Processor
	log   logx.Logger
	stats *metrics.Set
	now   func() time.Time

	// sdNotify is swapped in tests; production talks to systemd.
	sdNotify func(state string)
}

func New(cfg Config, st store.Store, f Fetcher, p Processor, log logx.Logger, stats *metrics.Set) *Runner {
	if cfg.MaxRunTime <= 0 {
		cfg.MaxRunTime = 5 * time.Minute
	}
	return &Runner{
		cfg:   cfg,
		store: st,
		feed:  f,
		pipe:  p,
		log:   log,
		stats: stats,
		now:   time.Now,
		sdNotify: func(state string) {
			_, _ = daemon.SdNotify(false, state)
		},
	}
}

// Run executes cycles until the context is cancelled, the time budget is
// spent (time-boxed mode), or three consecutive cycles fail.
func (r *Runner) Run(ctx context.Context) error {
	start := r.now()
	if !r.cfg.Local {
		r.log.Info("running time-boxed", logx.Duration("budget", r.cfg.MaxRunTime))
	}

	r.sdNotify(daemon.SdNotifyReady)
	stopWatchdog := r.startWatchdog(ctx)
	defer stopWatchdog()

	if r.cfg.Local && r.cfg.PruneSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.cfg.PruneSchedule, func() { r.pruneArtifacts() }); err != nil {
			r.log.Warn("invalid prune schedule", logx.String("schedule", r.cfg.PruneSchedule), logx.Err(err))
		} else {
			c.Start()
			defer c.Stop()
		}
	}

	failures := 0
	cycles := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !r.cfg.Local && r.now().Sub(start) >= r.cfg.MaxRunTime {
			r.log.Info("time budget spent, exiting")
			return nil
		}

		if err := r.safeCycle(ctx, start); err != nil {
			r.stats.RunFailures.Inc()
			failures++
			r.log.Error("run cycle failed", logx.Err(err), logx.Int("consecutive", failures))
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("giving up after %d consecutive failures: %w", failures, err)
			}
		} else {
			failures = 0
		}

		cycles++
		r.log.Info("cycle finished", logx.Int("cycles", cycles))
	}
}

// safeCycle converts panics into cycle errors so a bad candidate cannot take
// the whole process down without the claim cleanup running.
func (r *Runner) safeCycle(ctx context.Context, start time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in run cycle", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.runCycle(ctx, start)
}

func (r *Runner) runCycle(ctx context.Context, start time.Time) error {
	held := make(map[string]struct{})
	// Scoped acquisition: whatever happens below, claims this instance still
	// holds are released so other instances can pick the events up.
	defer r.releaseHeld(held)

	known, err := r.store.DeliveredIDs(ctx)
	if err != nil {
		return fmt.Errorf("load delivered ids: %w", err)
	}
	r.log.Info("loaded already sent ids", logx.Int("count", len(known)))

	window := feed.WindowWeek
	if r.cfg.Local {
		window = feed.WindowMonth
	}
	candidates, err := r.feed.Fetch(ctx, window)
	if err != nil {
		return err
	}
	r.log.Info("fetched candidates", logx.Int("count", len(candidates)), logx.String("window", string(window)))

	for _, ev := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		// The budget is checked between candidates; an in-flight delivery
		// is never interrupted.
		if !r.cfg.Local && r.now().Sub(start) >= r.cfg.MaxRunTime {
			r.log.Info("time budget spent mid-cycle")
			break
		}

		// Event-level failures are logged inside the pipeline and must not
		// abort the batch.
		_, _ = r.pipe.Process(ctx, ev, known, held)
	}

	r.stats.RunCycles.Inc()
	return nil
}

func (r *Runner) releaseHeld(held map[string]struct{}) {
	if len(held) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for id := range held {
		if err := r.store.ReleaseClaim(ctx, id); err != nil {
			r.log.Warn("release on exit failed", logx.String("id", id), logx.Err(err))
		}
	}
	r.log.Info("cleaned up reservations", logx.Int("count", len(held)))
}

// startWatchdog pings the systemd watchdog if one is armed for this unit.
func (r *Runner) startWatchdog(ctx context.Context) func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return func() {}
	}
	wctx, cancel := context.WithCancel(ctx)
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-t.C:
				r.sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	}()
	return cancel
}
