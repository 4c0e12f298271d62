package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goalfeed/internal/events"
)

type fakeFetcher struct {
	mu       sync.Mutex
	fixtures []events.FixtureSnapshot
	err      error
	calls    int
}

func (f *fakeFetcher) LiveFixtures(context.Context) ([]events.FixtureSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fixtures, f.err
}

func (f *fakeFetcher) set(fixtures ...events.FixtureSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures = fixtures
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
}

func snapshot(home, away, elapsed int) events.FixtureSnapshot {
	return events.FixtureSnapshot{
		FixtureID:  42,
		LeagueID:   39,
		LeagueName: "Premier League",
		HomeTeam:   "Liverpool",
		AwayTeam:   "Everton",
		Status:     "2H",
		Elapsed:    elapsed,
		HomeScore:  home,
		AwayScore:  away,
	}
}

func newTestPoller(fetcher SnapshotFetcher) *Poller {
	return NewPoller(fetcher, events.NewFanout(), []int{39, 140}, time.Minute, fixedClock)
}

func TestPollOnceFirstSightEmitsNothing(t *testing.T) {
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{snapshot(2, 1, 60)}}
	p := newTestPoller(fetcher)

	goals, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, goals)

	// The snapshot is stored, so a repeat of the same score stays silent.
	goals, err = p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, goals)
}

func TestPollOnceSingleDelta(t *testing.T) {
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{snapshot(1, 0, 30)}}
	p := newTestPoller(fetcher)

	_, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	fetcher.fixtures = []events.FixtureSnapshot{snapshot(2, 0, 55)}
	goals, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 1)

	g := goals[0]
	require.NotEmpty(t, g.ID)
	require.Equal(t, 42, g.FixtureID)
	require.Equal(t, "Liverpool", g.Team)
	require.Equal(t, events.UnknownPlayerPolling, g.Player)
	require.Equal(t, 55, g.Minute)
	require.Equal(t, 2, g.HomeScore)
	require.Equal(t, 0, g.AwayScore)
	require.Equal(t, events.SourcePolling, g.Source)
	require.Equal(t, fixedClock(), g.Timestamp)
}

func TestPollOnceMultiGoalBurst(t *testing.T) {
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{snapshot(1, 0, 30)}}
	p := newTestPoller(fetcher)

	_, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	// Two home goals and one away goal between polls: three events, home
	// column first, with scores stepping monotonically.
	fetcher.fixtures = []events.FixtureSnapshot{snapshot(3, 1, 70)}
	goals, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 3)

	require.Equal(t, "Liverpool", goals[0].Team)
	require.Equal(t, [2]int{2, 0}, [2]int{goals[0].HomeScore, goals[0].AwayScore})
	require.Equal(t, "Liverpool", goals[1].Team)
	require.Equal(t, [2]int{3, 0}, [2]int{goals[1].HomeScore, goals[1].AwayScore})
	require.Equal(t, "Everton", goals[2].Team)
	require.Equal(t, [2]int{3, 1}, [2]int{goals[2].HomeScore, goals[2].AwayScore})
}

func TestPollOnceFiltersLeagues(t *testing.T) {
	obscure := snapshot(0, 0, 10)
	obscure.LeagueID = 999
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{obscure}}
	p := newTestPoller(fetcher)

	_, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	obscure.HomeScore = 1
	fetcher.fixtures = []events.FixtureSnapshot{obscure}
	goals, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, goals)
}

func TestPollOnceClampsMinuteAndDefaultsTeam(t *testing.T) {
	first := snapshot(0, 0, 900)
	first.HomeTeam = ""
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{first}}
	p := newTestPoller(fetcher)

	_, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	second := snapshot(1, 0, 900)
	second.HomeTeam = ""
	fetcher.fixtures = []events.FixtureSnapshot{second}
	goals, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 1)
	require.Equal(t, events.MaxMinute, goals[0].Minute)
	require.Equal(t, events.UnknownTeam, goals[0].Team)
}

func TestPollOnceFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("provider unreachable")}
	p := newTestPoller(fetcher)

	goals, err := p.PollOnce(context.Background())
	require.ErrorContains(t, err, "provider unreachable")
	require.Empty(t, goals)
}

func TestRunDispatchesAndStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{fixtures: []events.FixtureSnapshot{snapshot(0, 0, 5)}}

	consumer := make(chan events.GoalEvent, 8)
	fanout := events.NewFanout()
	fanout.Register(events.ConsumerFunc(func(e events.GoalEvent) error {
		consumer <- e
		return nil
	}))

	p := NewPoller(fetcher, fanout, []int{39}, 10*time.Millisecond, fixedClock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Wait for the baseline poll, then raise the score.
	require.Eventually(t, func() bool { return fetcher.callCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	fetcher.set(snapshot(1, 0, 20))

	select {
	case g := <-consumer:
		require.Equal(t, events.SourcePolling, g.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("no polled goal dispatched")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
