package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

// Subscription channels and event filters sent on every connect.
var (
	subscribeChannels = []string{"live_goals", "live_scores"}
	subscribeEvents   = []string{"goal", "penalty_goal", "own_goal"}
)

// Listener owns the stream path: it dials through the Dialer, subscribes,
// routes inbound messages, deduplicates goals, and dispatches them to the
// fanout. On connection loss it retries with the backoff policy until the
// attempt ceiling is exceeded, then reports Exhausted and returns.
type Listener struct {
	dialer  Dialer
	router  *Router
	dedup   *Dedup
	fanout  *events.Fanout
	store   *Store // nil disables raw payload persistence
	backoff Backoff
	leagues []int

	state       atomic.Int32
	exhausted   chan struct{}
	exhaustOnce sync.Once

	connMu sync.Mutex
	conn   Conn

	fixturesMu sync.RWMutex
	fixtures   map[int]json.RawMessage
}

func NewListener(dialer Dialer, router *Router, dedup *Dedup, fanout *events.Fanout, store *Store, backoff Backoff, leagues []int) *Listener {
	return &Listener{
		dialer:    dialer,
		router:    router,
		dedup:     dedup,
		fanout:    fanout,
		store:     store,
		backoff:   backoff,
		leagues:   leagues,
		exhausted: make(chan struct{}),
		fixtures:  make(map[int]json.RawMessage),
	}
}

// State returns the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Exhausted is closed once the reconnect ceiling has been exceeded.
// The engine's health monitor watches it to activate the polling fallback.
func (l *Listener) Exhausted() <-chan struct{} {
	return l.exhausted
}

// Run connects and listens until ctx is cancelled, Close is called, or the
// reconnect ceiling is exceeded (ErrExhausted). A session that reaches
// Streaming resets the attempt counter.
func (l *Listener) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			l.setState(StateDisconnected)
			return ctx.Err()
		}

		streamed, err := l.connectAndListen(ctx)
		if ctx.Err() != nil || errors.Is(err, ErrClosed) {
			l.setState(StateDisconnected)
			return ctx.Err()
		}

		if streamed {
			attempt = 0
		}
		attempt++
		telemetry.Metrics.Reconnects.Inc()

		if l.backoff.Exhausted(attempt) {
			l.setState(StateExhausted)
			l.exhaustOnce.Do(func() { close(l.exhausted) })
			telemetry.Errorf("stream: reconnect ceiling reached after %d attempts — stream path exhausted", attempt)
			return ErrExhausted
		}

		delay := l.backoff.Next(attempt)
		l.setState(StateReconnecting)
		telemetry.Warnf("stream: connection lost (attempt %d/%d): %v — retrying in %s",
			attempt, l.backoff.Ceiling, err, delay.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			l.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Close tears down the current connection, unblocking any in-progress
// Receive. Safe to call at any time, including concurrently with Run.
func (l *Listener) Close() {
	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// connectAndListen runs one session: dial, subscribe, receive loop.
// streamed reports whether the session reached Streaming.
func (l *Listener) connectAndListen(ctx context.Context) (streamed bool, err error) {
	l.setState(StateConnecting)
	conn, err := l.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	l.setConn(conn)
	defer func() {
		conn.Close()
		l.setConn(nil)
	}()

	l.setState(StateSubscribed)
	req := SubscribeRequest{
		Type:     "subscribe",
		Channels: subscribeChannels,
		Leagues:  l.leagues,
		Events:   subscribeEvents,
	}
	if err := conn.Subscribe(req); err != nil {
		return false, err
	}

	l.setState(StateStreaming)
	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		raw, err := conn.Receive()
		if err != nil {
			return true, err
		}

		telemetry.Metrics.MessagesReceived.Inc()
		routed := l.router.Route(raw)
		l.store.Insert(routed.Kind.String(), raw)
		l.handle(routed)
	}
}

func (l *Listener) handle(routed Routed) {
	switch routed.Kind {
	case KindGoal:
		goal := routed.Goal
		key := DedupKey{FixtureID: goal.FixtureID, Minute: goal.Minute, Player: goal.Player}
		if !l.dedup.Observe(key) {
			telemetry.Metrics.DuplicatesSuppressed.Inc()
			telemetry.Debugf("stream: duplicate goal suppressed fixture=%d minute=%d player=%q",
				goal.FixtureID, goal.Minute, goal.Player)
			return
		}
		telemetry.Metrics.GoalsDetected.Inc()
		telemetry.Infof("GOAL: %s (%s) %d'  %s %d - %d %s",
			goal.Player, goal.Team, goal.Minute,
			goal.HomeTeam, goal.HomeScore, goal.AwayScore, goal.AwayTeam)
		start := time.Now()
		l.fanout.Dispatch(goal)
		telemetry.Metrics.PushLatency.Record(time.Since(start))

	case KindFixtureUpdate:
		l.fixturesMu.Lock()
		l.fixtures[routed.FixtureID] = routed.Raw
		count := len(l.fixtures)
		l.fixturesMu.Unlock()
		telemetry.Metrics.ActiveFixtures.Set(int64(count))
		telemetry.Debugf("stream: fixture %d updated: %s", routed.FixtureID, routed.Status)

	case KindHeartbeat:
		// keepalive only

	case KindProviderError:
		telemetry.Warnf("stream: provider error: %v", routed.Err)

	case KindParseError:
		telemetry.Warnf("stream: dropping malformed message: %v", routed.Err)

	case KindLeagueFiltered, KindUnrecognized:
		// counted and logged by the router
	}
}

// ActiveFixtures returns the cached raw status payload per fixture.
// Read-only view for external inspection.
func (l *Listener) ActiveFixtures() map[int]json.RawMessage {
	l.fixturesMu.RLock()
	defer l.fixturesMu.RUnlock()
	out := make(map[int]json.RawMessage, len(l.fixtures))
	for id, raw := range l.fixtures {
		out[id] = raw
	}
	return out
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Listener) setConn(c Conn) {
	l.connMu.Lock()
	l.conn = c
	l.connMu.Unlock()
}
