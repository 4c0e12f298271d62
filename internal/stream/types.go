package stream

import "encoding/json"

// Envelope is the top-level message; only "type" is decoded first to route
// to the correct payload type.
type Envelope struct {
	Type string `json:"type"` // "goal", "fixture_update", "heartbeat", "error"
}

// SubscribeRequest is the declarative subscription sent after connecting.
type SubscribeRequest struct {
	Type     string   `json:"type"` // always "subscribe"
	Channels []string `json:"channels"`
	Leagues  []int    `json:"leagues"`
	Events   []string `json:"events"`
}

// GoalMessage carries one scoring event.
type GoalMessage struct {
	Type    string      `json:"type"` // "goal"
	Fixture WireFixture `json:"fixture"`
	League  WireLeague  `json:"league"`
	Goal    WireGoal    `json:"goal"`
	Score   WireScore   `json:"score"`
}

type WireFixture struct {
	ID       int    `json:"id"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
}

type WireLeague struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type WireGoal struct {
	Team   string `json:"team"`
	Player string `json:"player"`
	Minute int    `json:"minute"`
	Type   string `json:"type"` // "Normal", "Penalty", "Own Goal"
}

type WireScore struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// FixtureUpdateMessage reports a fixture status change (kickoff, halftime,
// fulltime). The raw payload is cached as-is in the active-fixture table.
type FixtureUpdateMessage struct {
	Type    string          `json:"type"` // "fixture_update"
	Fixture WireFixture     `json:"fixture"`
	Status  string          `json:"status"`
	Raw     json.RawMessage `json:"-"`
}

// ErrorMessage is a provider-reported error; logged only.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}
