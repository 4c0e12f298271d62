package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"goalfeed/internal/events"
)

// Envelope is the wire format for goal events rebroadcast to relay clients.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

const typeGoal = "goal"

// MarshalGoal serializes a goal event into a JSON-encoded Envelope.
func MarshalGoal(evt events.GoalEvent) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      typeGoal,
		ID:        evt.ID,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalGoal deserializes a JSON Envelope back into a goal event.
func UnmarshalGoal(data []byte) (events.GoalEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.GoalEvent{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != typeGoal {
		return events.GoalEvent{}, fmt.Errorf("unknown event type: %s", env.Type)
	}

	var evt events.GoalEvent
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		return events.GoalEvent{}, fmt.Errorf("unmarshal goal: %w", err)
	}
	return evt, nil
}
