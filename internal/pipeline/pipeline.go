// Package pipeline attempts delivery of one candidate event at a time:
// re-check, claim, render, send, commit — releasing the claim on any failure
// so the event stays retryable.
package pipeline

import (
	"context"
	"time"

	"quakebot/internal/metrics"
	"quakebot/internal/quake"
	"quakebot/internal/store"
	"quakebot/pkg/logx"
)

// Renderer produces the map artifact for an event and returns its path.
type Renderer interface {
	Render(ctx context.Context, ev quake.Event) (string, error)
}

// Notifier delivers an artifact with a caption; it owns its retry policy.
type Notifier interface {
	SendPhoto(ctx context.Context, path, caption string) error
}

// Outcome classifies what happened to one candidate.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeAlreadySent
	OutcomeReservedElsewhere
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeAlreadySent:
		return "already_sent"
	case OutcomeReservedElsewhere:
		return "reserved_elsewhere"
	default:
		return "failed"
	}
}

// Pipeline wires the store and the external collaborators together.
type Pipeline struct {
	store  store.Store
	render Renderer
	notify Notifier
	log    logx.Logger
	stats  *metrics.Set
	now    func() time.Time
}

func New(st store.Store, r Renderer, n Notifier, log logx.Logger, stats *metrics.Set) *Pipeline {
	return &Pipeline{store: st, render: r, notify: n, log: log, stats: stats, now: time.Now}
}

// Process runs one candidate through the claim/deliver/commit protocol.
//
// known is the in-memory set of ids this process believes are delivered;
// held is the set of claims this process currently holds. Both belong to the
// orchestrator and are updated here as the event moves through its states.
// A non-nil error is always an event-level failure: the claim (if any) has
// been released and the run should continue with the next candidate.
func (p *Pipeline) Process(ctx context.Context, ev quake.Event, known, held map[string]struct{}) (Outcome, error) {
	log := p.log.With(logx.String("id", ev.ID))

	if _, ok := known[ev.ID]; ok {
		log.Debug("skipping, already sent")
		p.stats.EventsSkipped.WithLabelValues(metrics.ReasonAlreadySent).Inc()
		return OutcomeAlreadySent, nil
	}

	// Another instance may have delivered it after our snapshot was loaded.
	delivered, err := p.store.IsDelivered(ctx, ev.ID)
	if err != nil {
		p.stats.EventsFailed.Inc()
		return OutcomeFailed, err
	}
	if delivered {
		known[ev.ID] = struct{}{}
		log.Info("skipping, already sent (store check)")
		p.stats.EventsSkipped.WithLabelValues(metrics.ReasonAlreadySent).Inc()
		return OutcomeAlreadySent, nil
	}

	ok, err := p.store.TryClaim(ctx, ev.ID, p.now())
	if err != nil {
		p.stats.EventsFailed.Inc()
		return OutcomeFailed, err
	}
	if !ok {
		log.Info("skipping, reserved by another instance")
		p.stats.EventsSkipped.WithLabelValues(metrics.ReasonReservedElsewhere).Inc()
		p.stats.ClaimConflicts.Inc()
		return OutcomeReservedElsewhere, nil
	}
	held[ev.ID] = struct{}{}

	log.Info("processing", logx.Float64("mag", ev.Magnitude), logx.String("place", ev.Place))

	if err := p.deliver(ctx, ev); err != nil {
		p.releaseAfterFailure(ev.ID, held, log, err)
		return OutcomeFailed, err
	}

	if err := p.store.Commit(ctx, ev, p.now()); err != nil {
		p.releaseAfterFailure(ev.ID, held, log, err)
		return OutcomeFailed, err
	}
	delete(held, ev.ID)
	known[ev.ID] = struct{}{}

	p.stats.EventsSent.Inc()
	log.Info("sent and committed")
	return OutcomeSent, nil
}

func (p *Pipeline) deliver(ctx context.Context, ev quake.Event) error {
	path, err := p.render.Render(ctx, ev)
	if err != nil {
		return err
	}

	seq, err := p.store.DeliveredCount(ctx)
	if err != nil {
		return err
	}

	return p.notify.SendPhoto(ctx, path, quake.Caption(ev, seq+1))
}

// releaseAfterFailure drops our claim so the id becomes retryable. The
// release itself is best-effort; an unreleased claim still expires via the
// staleness window.
func (p *Pipeline) releaseAfterFailure(id string, held map[string]struct{}, log logx.Logger, cause error) {
	p.stats.EventsFailed.Inc()
	log.Error("event failed, releasing claim", logx.Err(cause))

	rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.ReleaseClaim(rctx, id); err != nil {
		log.Warn("release failed; claim will expire via staleness window", logx.Err(err))
		return
	}
	delete(held, id)
}
