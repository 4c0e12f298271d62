package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

// Kind classifies an inbound stream message.
type Kind int

const (
	KindGoal Kind = iota
	KindFixtureUpdate
	KindHeartbeat
	KindProviderError
	KindLeagueFiltered // goal for a league outside the allow-list
	KindUnrecognized
	KindParseError
)

func (k Kind) String() string {
	switch k {
	case KindGoal:
		return "goal"
	case KindFixtureUpdate:
		return "fixture_update"
	case KindHeartbeat:
		return "heartbeat"
	case KindProviderError:
		return "error"
	case KindLeagueFiltered:
		return "league_filtered"
	case KindUnrecognized:
		return "unrecognized"
	case KindParseError:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Routed is the result of classifying one raw message. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Routed struct {
	Kind      Kind
	Goal      events.GoalEvent // KindGoal
	FixtureID int              // KindFixtureUpdate
	Status    string           // KindFixtureUpdate
	Raw       json.RawMessage  // KindFixtureUpdate: full payload for the fixture table
	Err       error            // KindParseError / KindProviderError
}

// Router classifies raw inbound messages into a fixed set of kinds.
// Parsing failures and unknown message types are reported as explicit
// variants, never as errors that could kill the read loop. League
// filtering happens here, before the deduplicator sees anything.
type Router struct {
	allowed map[int]bool
	now     func() time.Time
}

func NewRouter(leagueIDs []int, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	allowed := make(map[int]bool, len(leagueIDs))
	for _, id := range leagueIDs {
		allowed[id] = true
	}
	return &Router{allowed: allowed, now: now}
}

// Route parses and classifies one raw message.
func (r *Router) Route(raw []byte) Routed {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		telemetry.Metrics.ParseErrors.Inc()
		return Routed{Kind: KindParseError, Err: fmt.Errorf("unmarshal envelope: %w", err)}
	}

	switch envelope.Type {
	case "goal":
		return r.routeGoal(raw)
	case "fixture_update":
		return r.routeFixtureUpdate(raw)
	case "heartbeat":
		return Routed{Kind: KindHeartbeat}
	case "error":
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			telemetry.Metrics.ParseErrors.Inc()
			return Routed{Kind: KindParseError, Err: fmt.Errorf("unmarshal error msg: %w", err)}
		}
		return Routed{Kind: KindProviderError, Err: fmt.Errorf("provider: %s", msg.Message)}
	default:
		telemetry.Debugf("router: unknown message type %q", envelope.Type)
		return Routed{Kind: KindUnrecognized}
	}
}

func (r *Router) routeGoal(raw []byte) Routed {
	var msg GoalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		telemetry.Metrics.ParseErrors.Inc()
		return Routed{Kind: KindParseError, Err: fmt.Errorf("unmarshal goal: %w", err)}
	}

	if !r.allowed[msg.League.ID] {
		telemetry.Metrics.LeagueFiltered.Inc()
		telemetry.Debugf("router: dropping goal from league %d", msg.League.ID)
		return Routed{Kind: KindLeagueFiltered}
	}

	return Routed{Kind: KindGoal, Goal: r.buildGoal(msg)}
}

// buildGoal maps a wire goal to the domain event, defaulting missing
// identity fields to sentinels rather than failing the parse.
func (r *Router) buildGoal(msg GoalMessage) events.GoalEvent {
	evt := events.GoalEvent{
		ID:         uuid.NewString(),
		FixtureID:  msg.Fixture.ID,
		LeagueID:   msg.League.ID,
		LeagueName: msg.League.Name,
		HomeTeam:   msg.Fixture.HomeTeam,
		AwayTeam:   msg.Fixture.AwayTeam,
		Team:       msg.Goal.Team,
		Player:     msg.Goal.Player,
		Minute:     clampMinute(msg.Goal.Minute),
		HomeScore:  max(msg.Score.Home, 0),
		AwayScore:  max(msg.Score.Away, 0),
		GoalType:   events.GoalType(msg.Goal.Type),
		Source:     events.SourceStream,
		Timestamp:  r.now(),
	}

	if evt.LeagueName == "" {
		evt.LeagueName = events.UnknownLeague
	}
	if evt.HomeTeam == "" {
		evt.HomeTeam = events.UnknownTeam
	}
	if evt.AwayTeam == "" {
		evt.AwayTeam = events.UnknownTeam
	}
	if evt.Team == "" {
		evt.Team = events.UnknownTeam
	}
	if evt.Player == "" {
		evt.Player = events.UnknownPlayer
	}
	if evt.GoalType == "" {
		evt.GoalType = events.GoalNormal
	}
	return evt
}

func (r *Router) routeFixtureUpdate(raw []byte) Routed {
	var msg FixtureUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		telemetry.Metrics.ParseErrors.Inc()
		return Routed{Kind: KindParseError, Err: fmt.Errorf("unmarshal fixture_update: %w", err)}
	}

	rawCopy := make(json.RawMessage, len(raw))
	copy(rawCopy, raw)
	return Routed{
		Kind:      KindFixtureUpdate,
		FixtureID: msg.Fixture.ID,
		Status:    msg.Status,
		Raw:       rawCopy,
	}
}

func clampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m > events.MaxMinute {
		return events.MaxMinute
	}
	return m
}
