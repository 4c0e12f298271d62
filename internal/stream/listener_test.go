package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goalfeed/internal/events"
)

// fakeConn replays scripted messages, then either returns finalErr or blocks
// until Close is called.
type fakeConn struct {
	mu       sync.Mutex
	msgs     [][]byte
	finalErr error

	subMu      sync.Mutex
	subscribed []SubscribeRequest

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(finalErr error, msgs ...string) *fakeConn {
	c := &fakeConn{finalErr: finalErr, closed: make(chan struct{})}
	for _, m := range msgs {
		c.msgs = append(c.msgs, []byte(m))
	}
	return c
}

func (c *fakeConn) Subscribe(req SubscribeRequest) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribed = append(c.subscribed, req)
	return nil
}

func (c *fakeConn) Receive() ([]byte, error) {
	c.mu.Lock()
	if len(c.msgs) > 0 {
		msg := c.msgs[0]
		c.msgs = c.msgs[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()

	if c.finalErr != nil {
		return nil, c.finalErr
	}
	<-c.closed
	return nil, ErrClosed
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer hands out scripted connections; a nil entry is a dial failure,
// and an empty script keeps failing.
type fakeDialer struct {
	mu     sync.Mutex
	script []*fakeConn
	dials  int
}

func (d *fakeDialer) Dial(_ context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.script) == 0 {
		return nil, &TransientError{Op: "dial", Err: errors.New("connection refused")}
	}
	next := d.script[0]
	d.script = d.script[1:]
	if next == nil {
		return nil, &TransientError{Op: "dial", Err: errors.New("connection refused")}
	}
	return next, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// capturingConsumer collects delivered goals on a channel.
type capturingConsumer struct {
	got chan events.GoalEvent
}

func newCapturingConsumer() *capturingConsumer {
	return &capturingConsumer{got: make(chan events.GoalEvent, 16)}
}

func (c *capturingConsumer) OnGoal(e events.GoalEvent) error {
	c.got <- e
	return nil
}

func (c *capturingConsumer) next(t *testing.T) events.GoalEvent {
	t.Helper()
	select {
	case e := <-c.got:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no goal delivered")
		return events.GoalEvent{}
	}
}

func (c *capturingConsumer) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-c.got:
		t.Fatalf("unexpected goal delivered: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func tinyBackoff(ceiling int) Backoff {
	return NewBackoff(time.Millisecond, 2*time.Millisecond, ceiling, nil)
}

const goalMsg = `{
	"type": "goal",
	"fixture": {"id": 42, "home_team": "Liverpool", "away_team": "Everton"},
	"league": {"id": 39, "name": "Premier League"},
	"goal": {"team": "Liverpool", "player": "Salah", "minute": 12, "type": "Normal"},
	"score": {"home": 1, "away": 0}
}`

func newTestListener(dialer Dialer, fanout *events.Fanout, ceiling int) *Listener {
	router := NewRouter(testLeagues, fixedClock)
	return NewListener(dialer, router, NewDedup(100), fanout, nil, tinyBackoff(ceiling), testLeagues)
}

func TestListenerDeliversGoalOnceAndFiltersLeagues(t *testing.T) {
	filtered := `{
		"type": "goal",
		"fixture": {"id": 7},
		"league": {"id": 999, "name": "Obscure Cup"},
		"goal": {"player": "Nobody", "minute": 3},
		"score": {"home": 1, "away": 0}
	}`

	conn := newFakeConn(nil, goalMsg, goalMsg, filtered)
	dialer := &fakeDialer{script: []*fakeConn{conn}}

	consumer := newCapturingConsumer()
	fanout := events.NewFanout()
	fanout.Register(consumer)

	l := newTestListener(dialer, fanout, 3)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	goal := consumer.next(t)
	require.Equal(t, 42, goal.FixtureID)
	require.Equal(t, "Salah", goal.Player)
	require.Equal(t, events.SourceStream, goal.Source)

	// The duplicate and the non-allow-listed goal never reach the consumer.
	consumer.expectNone(t)

	l.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	require.Equal(t, StateDisconnected, l.State())
}

func TestListenerSubscriptionShape(t *testing.T) {
	conn := newFakeConn(nil)
	dialer := &fakeDialer{script: []*fakeConn{conn}}

	l := newTestListener(dialer, events.NewFanout(), 3)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		conn.subMu.Lock()
		defer conn.subMu.Unlock()
		return len(conn.subscribed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.subMu.Lock()
	req := conn.subscribed[0]
	conn.subMu.Unlock()

	require.Equal(t, "subscribe", req.Type)
	require.Equal(t, []string{"live_goals", "live_scores"}, req.Channels)
	require.Equal(t, []string{"goal", "penalty_goal", "own_goal"}, req.Events)
	require.Equal(t, testLeagues, req.Leagues)

	l.Close()
	require.NoError(t, <-done)
}

func TestListenerExhaustsAfterCeilingPlusOneFailures(t *testing.T) {
	const ceiling = 2
	dialer := &fakeDialer{} // every dial fails

	l := newTestListener(dialer, events.NewFanout(), ceiling)

	err := l.Run(context.Background())
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, ceiling+1, dialer.dialCount())
	require.Equal(t, StateExhausted, l.State())

	select {
	case <-l.Exhausted():
	default:
		t.Fatal("exhausted channel not closed")
	}
}

func TestListenerResetsAttemptsAfterStreaming(t *testing.T) {
	transient := &TransientError{Op: "read", Err: errors.New("connection reset")}

	// Two dial failures, a session that streams and drops, one more dial
	// failure, then a session held open. With ceiling 3, the run survives
	// only if a streaming session resets the attempt counter.
	last := newFakeConn(nil, goalMsg)
	dialer := &fakeDialer{script: []*fakeConn{
		nil,
		nil,
		newFakeConn(transient, `{"type":"heartbeat"}`),
		nil,
		last,
	}}

	consumer := newCapturingConsumer()
	fanout := events.NewFanout()
	fanout.Register(consumer)

	l := newTestListener(dialer, fanout, 3)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	goal := consumer.next(t)
	require.Equal(t, "Salah", goal.Player)
	require.Equal(t, 5, dialer.dialCount())

	select {
	case <-l.Exhausted():
		t.Fatal("stream path exhausted despite attempt reset")
	default:
	}

	l.Close()
	require.NoError(t, <-done)
}

func TestListenerContextCancelStopsRetrying(t *testing.T) {
	dialer := &fakeDialer{}
	l := newTestListener(dialer, events.NewFanout(), 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, StateDisconnected, l.State())
}

func TestListenerCachesFixtureUpdates(t *testing.T) {
	update := `{"type": "fixture_update", "fixture": {"id": 314}, "status": "HT"}`
	conn := newFakeConn(nil, update)
	dialer := &fakeDialer{script: []*fakeConn{conn}}

	l := newTestListener(dialer, events.NewFanout(), 3)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, ok := l.ActiveFixtures()[314]
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	l.Close()
	require.NoError(t, <-done)
}
