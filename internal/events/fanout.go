package events

import (
	"fmt"
	"reflect"
	"sync"

	"goalfeed/internal/telemetry"
)

// Consumer receives goal events from the fanout. Implementations must not
// assume they are the only consumer; errors are reported back to the fanout
// and never abort delivery to the remaining consumers.
type Consumer interface {
	OnGoal(GoalEvent) error
}

// ConsumerFunc adapts a plain function to the Consumer interface.
type ConsumerFunc func(GoalEvent) error

func (f ConsumerFunc) OnGoal(e GoalEvent) error { return f(e) }

// DeliveryResult records the outcome of one consumer invocation.
type DeliveryResult struct {
	Consumer string
	Err      error
}

// Fanout delivers each goal event to every registered consumer in
// registration order on the dispatcher's goroutine. A failing consumer is
// logged and skipped; it never blocks or crashes delivery to the others.
type Fanout struct {
	mu        sync.RWMutex
	consumers []Consumer
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Register adds a consumer. Registration is idempotent: registering the
// same (comparable) consumer value twice delivers each event once. Consumers
// with non-comparable dynamic types (e.g. ConsumerFunc) are always appended.
func (f *Fanout) Register(c Consumer) {
	if c == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if reflect.TypeOf(c).Comparable() {
		for _, existing := range f.consumers {
			if reflect.TypeOf(existing).Comparable() && existing == c {
				telemetry.Debugf("fanout: consumer %s already registered", consumerName(c))
				return
			}
		}
	}
	f.consumers = append(f.consumers, c)
	telemetry.Infof("fanout: registered consumer %s", consumerName(c))
}

// Len returns the number of registered consumers.
func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.consumers)
}

// Dispatch invokes every consumer with the event, in registration order,
// and returns one DeliveryResult per consumer. A panicking consumer is
// converted to an error result.
func (f *Fanout) Dispatch(evt GoalEvent) []DeliveryResult {
	f.mu.RLock()
	consumers := f.consumers
	f.mu.RUnlock()

	results := make([]DeliveryResult, 0, len(consumers))
	for _, c := range consumers {
		err := invoke(c, evt)
		if err != nil {
			telemetry.Metrics.ConsumerErrors.Inc()
			telemetry.Warnf("fanout: consumer %s failed: %v", consumerName(c), err)
		}
		results = append(results, DeliveryResult{Consumer: consumerName(c), Err: err})
	}
	return results
}

func invoke(c Consumer, evt GoalEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v", r)
		}
	}()
	return c.OnGoal(evt)
}

func consumerName(c Consumer) string {
	return fmt.Sprintf("%T", c)
}
