// Package signals holds downstream goal consumers. Trading strategies plug
// in here by implementing events.Consumer; the engine itself never depends
// on what a consumer does with an event.
package signals

import (
	"sync/atomic"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

// GoalLogger is a minimal consumer that logs every delivered goal. It doubles
// as the reference implementation of the Consumer interface.
type GoalLogger struct {
	received atomic.Int64
}

var _ events.Consumer = (*GoalLogger)(nil)

func NewGoalLogger() *GoalLogger {
	return &GoalLogger{}
}

func (g *GoalLogger) OnGoal(evt events.GoalEvent) error {
	g.received.Add(1)
	telemetry.Infof("signal: %s %d - %d %s  (%s, %d', %s, via %s)",
		evt.HomeTeam, evt.HomeScore, evt.AwayScore, evt.AwayTeam,
		evt.Player, evt.Minute, evt.GoalType, evt.Source)
	return nil
}

// Received returns how many goals this consumer has been delivered.
func (g *GoalLogger) Received() int64 {
	return g.received.Load()
}
