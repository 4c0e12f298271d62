package main

import (
	"os"
	"os/signal"
	"syscall"

	"goalfeed/internal/adapters/outbound/apifootball"
	"goalfeed/internal/adapters/outbound/discord"
	"goalfeed/internal/config"
	"goalfeed/internal/engine"
	"goalfeed/internal/events"
	"goalfeed/internal/fallback"
	"goalfeed/internal/relay"
	"goalfeed/internal/signals"
	"goalfeed/internal/stream"
	"goalfeed/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting goalfeed  leagues=%d  stream=%s", len(cfg.LeagueIDs), cfg.StreamURL)

	// ── Fanout & consumers ─────────────────────────────────────
	fanout := events.NewFanout()
	fanout.Register(signals.NewGoalLogger())

	if cfg.DiscordWebhookURL != "" {
		fanout.Register(discord.NewGoalConsumer(discord.NewNotifier(cfg.DiscordWebhookURL)))
	}

	if cfg.RelayPort > 0 {
		relaySrv := relay.NewServer()
		fanout.Register(relaySrv)
		go func() {
			if err := relaySrv.ListenAndServe(cfg.RelayPort); err != nil {
				telemetry.Errorf("relay: %v", err)
			}
		}()
	}

	// ── Raw payload store (optional) ───────────────────────────
	var store *stream.Store
	if cfg.PayloadStorePath != "" {
		var err error
		store, err = stream.OpenStore(cfg.PayloadStorePath)
		if err != nil {
			telemetry.Warnf("Payload store disabled: %v", err)
			store = nil
		}
	}

	// ── Stream path ────────────────────────────────────────────
	dialer := &stream.WSDialer{
		URL:         cfg.StreamURL,
		APIKey:      cfg.ProviderKey,
		APIHost:     cfg.ProviderHost,
		ReadTimeout: cfg.ReadTimeout,
	}
	router := stream.NewRouter(cfg.LeagueIDs, nil)
	dedup := stream.NewDedup(cfg.DedupHighWater)
	backoff := stream.NewBackoff(cfg.ReconnectBase, cfg.ReconnectCap, cfg.ReconnectCeiling, nil)
	listener := stream.NewListener(dialer, router, dedup, fanout, store, backoff, cfg.LeagueIDs)

	// ── Fallback path ──────────────────────────────────────────
	rest := apifootball.NewClient("", cfg.ProviderKey, cfg.ProviderHost)
	poller := fallback.NewPoller(rest, fanout, cfg.LeagueIDs, cfg.FallbackPollInterval, nil)

	// ── Engine ─────────────────────────────────────────────────
	eng := engine.New(cfg, listener, poller, fanout, rest, rest, store)
	eng.Start()

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutdown signal received")
	eng.Stop()
}
