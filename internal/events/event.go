package events

import "time"

// GoalType tags how a goal was scored.
type GoalType string

const (
	GoalNormal  GoalType = "Normal"
	GoalPenalty GoalType = "Penalty"
	GoalOwnGoal GoalType = "Own Goal"
)

// Source identifies which ingestion path produced an event.
type Source string

const (
	SourceStream  Source = "stream"
	SourcePolling Source = "polling"
)

// Sentinel values used when a provider payload omits identity fields.
const (
	UnknownTeam          = "Unknown"
	UnknownPlayer        = "Unknown"
	UnknownPlayerPolling = "Unknown (via polling)"
	UnknownLeague        = "Unknown"
)

// MaxMinute is the highest match minute a goal may carry (injury time included).
const MaxMinute = 130

// GoalEvent is an immutable record of one scoring occurrence. It is created
// by the stream router or the polling fallback and passed to consumers by
// value; nothing mutates it after creation.
type GoalEvent struct {
	ID         string    `json:"id"`
	FixtureID  int       `json:"fixture_id"`
	LeagueID   int       `json:"league_id"`
	LeagueName string    `json:"league_name"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	Team       string    `json:"team"`
	Player     string    `json:"player"`
	Minute     int       `json:"minute"`
	HomeScore  int       `json:"home_score"`
	AwayScore  int       `json:"away_score"`
	GoalType   GoalType  `json:"goal_type"`
	Source     Source    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// FixtureSnapshot is one live fixture as reported by the snapshot feed.
// The polling fallback diffs successive snapshots to synthesize goals.
type FixtureSnapshot struct {
	FixtureID  int    `json:"fixture_id"`
	LeagueID   int    `json:"league_id"`
	LeagueName string `json:"league_name"`
	HomeTeam   string `json:"home_team"`
	AwayTeam   string `json:"away_team"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Elapsed    int    `json:"elapsed"` // match minutes played
	Status     string `json:"status"`  // "1H", "HT", "2H", "FT", ...
}
