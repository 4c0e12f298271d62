package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

// SnapshotFetcher returns the current live fixtures. Implemented by the
// REST fixtures client; faked in tests.
type SnapshotFetcher interface {
	LiveFixtures(ctx context.Context) ([]events.FixtureSnapshot, error)
}

const DefaultPollInterval = 30 * time.Second

// Poller synthesizes goal events from score deltas between successive live
// fixture snapshots. It is the fallback path, activated by the engine's
// health monitor once the stream path is exhausted. Synthesized events skip
// the stream deduplicator: polling only ever reports monotonic score
// increases, so deltas cannot repeat.
type Poller struct {
	fetcher  SnapshotFetcher
	fanout   *events.Fanout
	allowed  map[int]bool
	interval time.Duration
	now      func() time.Time

	// previous (home, away) score per fixture; owned by the poll loop.
	prev map[int][2]int
}

func NewPoller(fetcher SnapshotFetcher, fanout *events.Fanout, leagueIDs []int, interval time.Duration, now func() time.Time) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if now == nil {
		now = time.Now
	}
	allowed := make(map[int]bool, len(leagueIDs))
	for _, id := range leagueIDs {
		allowed[id] = true
	}
	return &Poller{
		fetcher:  fetcher,
		fanout:   fanout,
		allowed:  allowed,
		interval: interval,
		now:      now,
		prev:     make(map[int][2]int),
	}
}

// Run polls on the configured interval until ctx is cancelled. An
// in-progress cycle always completes; cancellation is only observed
// between cycles.
func (p *Poller) Run(ctx context.Context) {
	telemetry.Warnf("fallback: polling active (every %s)", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			telemetry.Infof("fallback: polling stopped")
			return
		case <-ticker.C:
			goals, err := p.PollOnce(ctx)
			if err != nil {
				telemetry.Warnf("fallback: poll failed: %v", err)
				continue
			}
			for _, g := range goals {
				p.fanout.Dispatch(g)
			}
		}
	}
}

// PollOnce fetches one snapshot and returns the goals synthesized from
// score deltas. One event is emitted per unit of score increase, so a
// two-goal burst between polls yields two events. The stored snapshot is
// updated unconditionally, delta or not.
func (p *Poller) PollOnce(ctx context.Context) ([]events.GoalEvent, error) {
	start := p.now()
	fixtures, err := p.fetcher.LiveFixtures(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch live fixtures: %w", err)
	}
	telemetry.Metrics.FallbackPolls.Inc()
	telemetry.Metrics.PollLatency.Record(time.Since(start))

	var goals []events.GoalEvent
	for _, fx := range fixtures {
		if !p.allowed[fx.LeagueID] {
			continue
		}

		current := [2]int{fx.HomeScore, fx.AwayScore}
		prev, seen := p.prev[fx.FixtureID]
		p.prev[fx.FixtureID] = current
		if !seen {
			continue
		}

		// One event per goal, home column first, scores stepping so the
		// sequence stays non-decreasing for the fixture.
		for h := prev[0] + 1; h <= current[0]; h++ {
			goals = append(goals, p.synthesize(fx, fx.HomeTeam, h, prev[1]))
		}
		for a := prev[1] + 1; a <= current[1]; a++ {
			goals = append(goals, p.synthesize(fx, fx.AwayTeam, current[0], a))
		}
	}

	if len(goals) > 0 {
		telemetry.Metrics.FallbackGoals.Add(int64(len(goals)))
		telemetry.Infof("fallback: %d goal(s) detected via polling", len(goals))
	}
	return goals, nil
}

func (p *Poller) synthesize(fx events.FixtureSnapshot, team string, home, away int) events.GoalEvent {
	if team == "" {
		team = events.UnknownTeam
	}
	minute := fx.Elapsed
	if minute < 0 {
		minute = 0
	}
	if minute > events.MaxMinute {
		minute = events.MaxMinute
	}
	return events.GoalEvent{
		ID:         uuid.NewString(),
		FixtureID:  fx.FixtureID,
		LeagueID:   fx.LeagueID,
		LeagueName: fx.LeagueName,
		HomeTeam:   fx.HomeTeam,
		AwayTeam:   fx.AwayTeam,
		Team:       team,
		Player:     events.UnknownPlayerPolling,
		Minute:     minute,
		HomeScore:  home,
		AwayScore:  away,
		GoalType:   events.GoalNormal,
		Source:     events.SourcePolling,
		Timestamp:  p.now(),
	}
}
