package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	name string
	seen []GoalEvent
	err  error
}

func (c *recordingConsumer) OnGoal(e GoalEvent) error {
	c.seen = append(c.seen, e)
	return c.err
}

type panickyConsumer struct{}

func (panickyConsumer) OnGoal(GoalEvent) error { panic("consumer bug") }

func sampleGoal() GoalEvent {
	return GoalEvent{
		ID:        "evt-1",
		FixtureID: 42,
		Player:    "Salah",
		Minute:    12,
		HomeScore: 1,
		GoalType:  GoalNormal,
		Source:    SourceStream,
	}
}

func TestFanoutDeliversInRegistrationOrder(t *testing.T) {
	f := NewFanout()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		f.Register(ConsumerFunc(func(GoalEvent) error {
			order = append(order, name)
			return nil
		}))
	}

	results := f.Dispatch(sampleGoal())
	require.Len(t, results, 3)
	require.Equal(t, []string{"first", "second", "third"}, order)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
}

func TestFanoutIsolatesFailingConsumer(t *testing.T) {
	f := NewFanout()

	failing := &recordingConsumer{name: "failing", err: errors.New("sink unavailable")}
	healthy := &recordingConsumer{name: "healthy"}
	f.Register(failing)
	f.Register(healthy)

	results := f.Dispatch(sampleGoal())
	require.Len(t, results, 2)
	require.ErrorContains(t, results[0].Err, "sink unavailable")
	require.NoError(t, results[1].Err)

	// The failure did not stop delivery to the healthy consumer.
	require.Len(t, healthy.seen, 1)
	require.Equal(t, "Salah", healthy.seen[0].Player)
}

func TestFanoutRecoversConsumerPanic(t *testing.T) {
	f := NewFanout()

	after := &recordingConsumer{name: "after"}
	f.Register(panickyConsumer{})
	f.Register(after)

	var results []DeliveryResult
	require.NotPanics(t, func() { results = f.Dispatch(sampleGoal()) })
	require.Len(t, results, 2)
	require.ErrorContains(t, results[0].Err, "consumer bug")
	require.Len(t, after.seen, 1)
}

func TestFanoutRegisterIdempotent(t *testing.T) {
	f := NewFanout()

	c := &recordingConsumer{name: "once"}
	f.Register(c)
	f.Register(c)
	require.Equal(t, 1, f.Len())

	f.Dispatch(sampleGoal())
	require.Len(t, c.seen, 1)

	// A distinct value of the same type is a distinct consumer.
	f.Register(&recordingConsumer{name: "twice"})
	require.Equal(t, 2, f.Len())
}

func TestFanoutIgnoresNilConsumer(t *testing.T) {
	f := NewFanout()
	f.Register(nil)
	require.Equal(t, 0, f.Len())
	require.Empty(t, f.Dispatch(sampleGoal()))
}
