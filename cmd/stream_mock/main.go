// stream_mock simulates the live goal WebSocket provider locally. It accepts
// the subscribe handshake, then sends heartbeats, fixture updates, and
// randomly scored goals (with occasional duplicate deliveries) to exercise
// the full stream pipeline.
//
// Usage:
//
//	go run cmd/stream_mock/main.go
//
// Then point the engine at it:
//
//	STREAM_URL=ws://localhost:9200/ws
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const listenAddr = ":9200"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type mockFixture struct {
	mu         sync.Mutex
	id         int
	leagueID   int
	leagueName string
	home       string
	away       string
	homeScore  int
	awayScore  int
	minute     int
	status     string
}

var fixtures = []*mockFixture{
	{id: 9001, leagueID: 39, leagueName: "Premier League", home: "Arsenal", away: "Chelsea", minute: 1, status: "1H"},
	{id: 9002, leagueID: 140, leagueName: "La Liga", home: "Real Madrid", away: "Barcelona", minute: 1, status: "1H"},
	{id: 9003, leagueID: 999, leagueName: "Obscure Cup", home: "Team A", away: "Team B", minute: 1, status: "1H"},
}

var players = []string{"Saka", "Palmer", "Bellingham", "Yamal", "Havertz", "Vinicius"}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handleWS)

	fmt.Fprintf(os.Stderr, "Stream mock listening on %s\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  WS: ws://localhost%s/ws\n", listenAddr)

	go tickFixtures()

	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Expect the subscribe handshake first.
	_, sub, err := conn.ReadMessage()
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "client subscribed: %s\n", sub)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	update := time.NewTicker(10 * time.Second)
	defer update.Stop()
	goal := time.NewTicker(time.Second)
	defer goal.Stop()

	for {
		select {
		case <-heartbeat.C:
			if err := writeJSON(conn, map[string]any{"type": "heartbeat"}); err != nil {
				return
			}
		case <-update.C:
			fx := fixtures[rand.Intn(len(fixtures))]
			if err := writeJSON(conn, buildUpdate(fx)); err != nil {
				return
			}
		case <-goal.C:
			// ~3% chance of a goal per tick.
			if rand.Float64() >= 0.03 {
				continue
			}
			fx := fixtures[rand.Intn(len(fixtures))]
			msg := buildGoal(fx)
			if err := writeJSON(conn, msg); err != nil {
				return
			}
			// Providers re-send goal frames; do the same ~30% of the time.
			if rand.Float64() < 0.3 {
				if err := writeJSON(conn, msg); err != nil {
					return
				}
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func buildGoal(fx *mockFixture) map[string]any {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	team := fx.home
	if rand.Float64() < 0.5 {
		fx.awayScore++
		team = fx.away
	} else {
		fx.homeScore++
	}

	goalType := "Normal"
	switch r := rand.Float64(); {
	case r < 0.08:
		goalType = "Penalty"
	case r < 0.11:
		goalType = "Own Goal"
	}

	return map[string]any{
		"type": "goal",
		"fixture": map[string]any{
			"id":        fx.id,
			"home_team": fx.home,
			"away_team": fx.away,
		},
		"league": map[string]any{"id": fx.leagueID, "name": fx.leagueName},
		"goal": map[string]any{
			"team":   team,
			"player": players[rand.Intn(len(players))],
			"minute": fx.minute,
			"type":   goalType,
		},
		"score": map[string]any{"home": fx.homeScore, "away": fx.awayScore},
	}
}

func buildUpdate(fx *mockFixture) map[string]any {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	return map[string]any{
		"type": "fixture_update",
		"fixture": map[string]any{
			"id":        fx.id,
			"home_team": fx.home,
			"away_team": fx.away,
		},
		"status": fx.status,
	}
}

// tickFixtures advances match minutes and half transitions.
func tickFixtures() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, fx := range fixtures {
			fx.mu.Lock()
			fx.minute++
			switch {
			case fx.status == "1H" && fx.minute >= 45:
				fx.status = "HT"
			case fx.status == "HT" && fx.minute >= 46:
				fx.status = "2H"
			case fx.status == "2H" && fx.minute >= 90:
				fx.status = "FT"
			}
			fx.mu.Unlock()
		}
	}
}
