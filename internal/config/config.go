package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Stream provider
	StreamURL    string
	ProviderKey  string
	ProviderHost string

	// League allow-list
	LeaguesPath string // YAML file; env LEAGUE_IDS overrides
	LeagueIDs   []int

	// Reconnect policy
	ReconnectBase    time.Duration
	ReconnectCap     time.Duration
	ReconnectCeiling int

	// Heartbeat / read deadline on the stream connection
	ReadTimeout time.Duration

	// Fallback polling
	FallbackPollInterval time.Duration

	// Dedup
	DedupHighWater int

	// Periodic loops
	PreMatchOddsInterval time.Duration
	LiveFixtureInterval  time.Duration
	StatsInterval        time.Duration

	// Raw payload store (empty path disables)
	PayloadStorePath string

	// Downstream surfaces (zero values disable)
	DiscordWebhookURL string
	RelayPort         int

	// Session export
	LogDir string

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		StreamURL:    envStr("STREAM_URL", "wss://api-football-v1.p.rapidapi.com/ws/live"),
		ProviderKey:  envStr("API_FOOTBALL_KEY", ""),
		ProviderHost: envStr("API_FOOTBALL_HOST", "api-football-v1.p.rapidapi.com"),

		LeaguesPath: envStr("LEAGUES_PATH", "internal/config/leagues.yaml"),

		ReconnectBase:    envDur("RECONNECT_BASE_SEC", 2*time.Second),
		ReconnectCap:     envDur("RECONNECT_CAP_SEC", 60*time.Second),
		ReconnectCeiling: envInt("RECONNECT_MAX_ATTEMPTS", 10),

		ReadTimeout: envDur("STREAM_READ_TIMEOUT_SEC", 90*time.Second),

		FallbackPollInterval: envDur("FALLBACK_POLL_SEC", 30*time.Second),

		DedupHighWater: envInt("DEDUP_HIGH_WATER", 1000),

		PreMatchOddsInterval: envDur("PREMATCH_ODDS_SEC", 1800*time.Second),
		LiveFixtureInterval:  envDur("LIVE_FIXTURE_SEC", 30*time.Second),
		StatsInterval:        envDur("STATS_REPORT_SEC", 300*time.Second),

		PayloadStorePath: envStr("PAYLOAD_STORE_PATH", ""),

		DiscordWebhookURL: envStr("DISCORD_WEBHOOK_URL", ""),
		RelayPort:         envInt("RELAY_PORT", 0),

		LogDir: envStr("LOG_DIR", "logs"),

		LogLevel: envStr("LOG_LEVEL", "info"),
	}

	cfg.LeagueIDs = loadLeagueIDs(cfg.LeaguesPath)
	return cfg
}

// loadLeagueIDs resolves the allow-list: LEAGUE_IDS env (comma-separated)
// wins, then the YAML file, then the built-in defaults.
func loadLeagueIDs(path string) []int {
	if ids := envIntList("LEAGUE_IDS"); len(ids) > 0 {
		return ids
	}
	if leagues, err := LoadLeagues(path); err == nil && len(leagues.IDs()) > 0 {
		return leagues.IDs()
	}
	return DefaultLeagueIDs()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDur reads a duration given in whole seconds.
func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func envIntList(key string) []int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
