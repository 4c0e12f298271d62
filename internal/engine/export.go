package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"goalfeed/internal/telemetry"
)

// sessionExport is the artifact written on shutdown: one timestamped JSON
// file per session with the run's accumulated statistics.
type sessionExport struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
	GoalsProcessed int64     `json:"goals_processed"`

	MessagesReceived     int64 `json:"messages_received"`
	ParseErrors          int64 `json:"parse_errors"`
	DuplicatesSuppressed int64 `json:"duplicates_suppressed"`
	LeagueFiltered       int64 `json:"league_filtered"`
	Reconnects           int64 `json:"reconnects"`
	FallbackPolls        int64 `json:"fallback_polls"`
	FallbackGoals        int64 `json:"fallback_goals"`
	ConsumerErrors       int64 `json:"consumer_errors"`

	PushLatencyP50Millis int64 `json:"push_latency_p50_ms"`
	PushLatencyP99Millis int64 `json:"push_latency_p99_ms"`
}

func (e *Engine) exportSession() {
	now := time.Now()
	export := sessionExport{
		SessionID:      e.sessionID,
		StartedAt:      e.startTime,
		EndedAt:        now,
		UptimeSeconds:  now.Sub(e.startTime).Seconds(),
		GoalsProcessed: e.goalsProcessed.Load(),

		MessagesReceived:     telemetry.Metrics.MessagesReceived.Value(),
		ParseErrors:          telemetry.Metrics.ParseErrors.Value(),
		DuplicatesSuppressed: telemetry.Metrics.DuplicatesSuppressed.Value(),
		LeagueFiltered:       telemetry.Metrics.LeagueFiltered.Value(),
		Reconnects:           telemetry.Metrics.Reconnects.Value(),
		FallbackPolls:        telemetry.Metrics.FallbackPolls.Value(),
		FallbackGoals:        telemetry.Metrics.FallbackGoals.Value(),
		ConsumerErrors:       telemetry.Metrics.ConsumerErrors.Value(),

		PushLatencyP50Millis: telemetry.Metrics.PushLatency.P50().Milliseconds(),
		PushLatencyP99Millis: telemetry.Metrics.PushLatency.P99().Milliseconds(),
	}

	if err := os.MkdirAll(e.cfg.LogDir, 0o755); err != nil {
		telemetry.Warnf("engine: create log dir: %v", err)
		return
	}

	path := filepath.Join(e.cfg.LogDir, fmt.Sprintf("session_%s.json", now.Format("20060102_150405")))
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		telemetry.Warnf("engine: marshal session export: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		telemetry.Warnf("engine: write session export: %v", err)
		return
	}

	telemetry.Infof("engine: session exported to %s", path)
}
