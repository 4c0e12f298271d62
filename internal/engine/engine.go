package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"goalfeed/internal/config"
	"goalfeed/internal/events"
	"goalfeed/internal/fallback"
	"goalfeed/internal/stream"
	"goalfeed/internal/telemetry"
)

// FixtureProvider supplies live fixture snapshots for the periodic loops.
type FixtureProvider interface {
	LiveFixtures(ctx context.Context) ([]events.FixtureSnapshot, error)
}

// OddsProvider supplies pre-match 1X2 odds for a fixture.
type OddsProvider interface {
	PreMatchOdds(ctx context.Context, fixtureID int) (map[string]float64, error)
}

// FixtureConsumer receives periodic live fixture updates (the second
// downstream consumer, independent of goal delivery).
type FixtureConsumer interface {
	OnFixtureUpdate(events.FixtureSnapshot)
}

// Engine owns the lifecycle of every concurrent activity: the stream
// listener with its retry loop, the health monitor that activates the
// polling fallback on exhaustion, the pre-match odds refresh, the live
// fixture refresh, and the stats reporter. Each runs as an independent
// goroutine; one failing never blocks shutdown of the others.
type Engine struct {
	cfg      *config.Config
	listener *stream.Listener
	poller   *fallback.Poller
	fanout   *events.Fanout
	fixtures FixtureProvider
	odds     OddsProvider
	store    *stream.Store

	fixtureConsumers []FixtureConsumer

	sessionID string
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc

	wg         sync.WaitGroup // every loop
	fallbackWG sync.WaitGroup // the fallback poll loop alone

	startOnce sync.Once
	stopOnce  sync.Once

	goalsProcessed atomic.Int64
}

func New(cfg *config.Config, listener *stream.Listener, poller *fallback.Poller, fanout *events.Fanout, fixtures FixtureProvider, odds OddsProvider, store *stream.Store) *Engine {
	return &Engine{
		cfg:       cfg,
		listener:  listener,
		poller:    poller,
		fanout:    fanout,
		fixtures:  fixtures,
		odds:      odds,
		store:     store,
		sessionID: uuid.NewString(),
	}
}

// RegisterFixtureConsumer adds a consumer of periodic live fixture updates.
// Must be called before Start.
func (e *Engine) RegisterFixtureConsumer(c FixtureConsumer) {
	if c != nil {
		e.fixtureConsumers = append(e.fixtureConsumers, c)
	}
}

// Start launches all loops. Non-blocking; pair with Stop.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.ctx, e.cancel = context.WithCancel(context.Background())
		e.startTime = time.Now()

		// Count every delivered goal for the session export.
		e.fanout.Register(events.ConsumerFunc(func(events.GoalEvent) error {
			e.goalsProcessed.Add(1)
			return nil
		}))

		telemetry.Infof("engine: session %s starting", e.sessionID)

		e.spawn("stream", e.streamLoop)
		e.spawn("health_monitor", e.healthMonitor)
		e.spawn("prematch_odds", e.preMatchOddsLoop)
		e.spawn("live_fixtures", e.liveFixtureLoop)
		e.spawn("stats_reporter", e.statsLoop)
	})
}

// Stop shuts everything down in order: cancel the run context (observed by
// every loop at its next suspension point), close the stream connection to
// unblock any in-progress receive, await the fallback loop if it was
// activated, await the remaining loops, then export the session artifact.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		telemetry.Infof("engine: stopping")

		e.cancel()
		e.listener.Close()
		e.fallbackWG.Wait()
		e.wg.Wait()

		if err := e.store.Close(); err != nil {
			telemetry.Warnf("engine: payload store close: %v", err)
		}

		e.exportSession()
		telemetry.Infof("engine: stopped  goals=%d reconnects=%d fallback_polls=%d consumer_errors=%d",
			e.goalsProcessed.Load(),
			telemetry.Metrics.Reconnects.Value(),
			telemetry.Metrics.FallbackPolls.Value(),
			telemetry.Metrics.ConsumerErrors.Value(),
		)
	})
}

// spawn runs fn on its own goroutine with panic isolation, tracked by the
// engine's WaitGroup so Stop can await completion.
func (e *Engine) spawn(name string, fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				telemetry.Errorf("engine: %s loop panic: %v", name, r)
			}
		}()
		fn(e.ctx)
	}()
}

func (e *Engine) streamLoop(ctx context.Context) {
	err := e.listener.Run(ctx)
	switch {
	case err == nil || errors.Is(err, context.Canceled):
	case errors.Is(err, stream.ErrExhausted):
		// Health monitor observes the Exhausted signal and takes over.
	default:
		telemetry.Errorf("engine: stream loop: %v", err)
	}
}

// healthMonitor waits for the stream path to report Exhausted, then runs
// the polling fallback until shutdown. The two sources are mutually
// exclusive in time: the stream is sole source until exhaustion, the
// poller after.
func (e *Engine) healthMonitor(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-e.listener.Exhausted():
	}

	e.fallbackWG.Add(1)
	defer e.fallbackWG.Done()
	e.poller.Run(ctx)
}

func (e *Engine) preMatchOddsLoop(ctx context.Context) {
	if e.odds == nil || e.fixtures == nil {
		return
	}

	ticker := time.NewTicker(e.cfg.PreMatchOddsInterval)
	defer ticker.Stop()

	for {
		e.refreshPreMatchOdds(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) refreshPreMatchOdds(ctx context.Context) {
	fixtures, err := e.fixtures.LiveFixtures(ctx)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.Warnf("engine: odds refresh: %v", err)
		}
		return
	}

	for _, fx := range fixtures {
		if ctx.Err() != nil {
			return
		}
		odds, err := e.odds.PreMatchOdds(ctx, fx.FixtureID)
		if err != nil {
			telemetry.Debugf("engine: odds fixture=%d: %v", fx.FixtureID, err)
			continue
		}
		if len(odds) > 0 {
			telemetry.Debugf("engine: cached odds fixture=%d home=%.2f draw=%.2f away=%.2f",
				fx.FixtureID, odds["home"], odds["draw"], odds["away"])
		}
	}
}

func (e *Engine) liveFixtureLoop(ctx context.Context) {
	if e.fixtures == nil || len(e.fixtureConsumers) == 0 {
		return
	}

	ticker := time.NewTicker(e.cfg.LiveFixtureInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fixtures, err := e.fixtures.LiveFixtures(ctx)
			if err != nil {
				if ctx.Err() == nil {
					telemetry.Warnf("engine: live fixture refresh: %v", err)
				}
				continue
			}
			for _, fx := range fixtures {
				for _, c := range e.fixtureConsumers {
					c.OnFixtureUpdate(fx)
				}
			}
		}
	}
}

func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			telemetry.Infof("stats: uptime=%s state=%s goals=%d dupes=%d reconnects=%d fallback_polls=%d push_p50=%s",
				time.Since(e.startTime).Round(time.Second),
				e.listener.State(),
				e.goalsProcessed.Load(),
				telemetry.Metrics.DuplicatesSuppressed.Value(),
				telemetry.Metrics.Reconnects.Value(),
				telemetry.Metrics.FallbackPolls.Value(),
				telemetry.Metrics.PushLatency.P50(),
			)
		}
	}
}
