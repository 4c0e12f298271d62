package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

// --- Convenience methods for common alert types ---

const (
	ColorGreen  = 0x2ECC71
	ColorRed    = 0xE74C3C
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

func (n *Notifier) GoalAlert(ctx context.Context, g events.GoalEvent) error {
	color := ColorGreen
	if g.Source == events.SourcePolling {
		color = ColorYellow
	}
	return n.SendEmbed(ctx, Embed{
		Title:       fmt.Sprintf("GOAL — %s", g.LeagueName),
		Description: fmt.Sprintf("%s %d – %d %s", g.HomeTeam, g.HomeScore, g.AwayScore, g.AwayTeam),
		Color:       color,
		Fields: []Field{
			{Name: "Scorer", Value: g.Player, Inline: true},
			{Name: "Team", Value: g.Team, Inline: true},
			{Name: "Minute", Value: fmt.Sprintf("%d'", g.Minute), Inline: true},
			{Name: "Type", Value: string(g.GoalType), Inline: true},
			{Name: "Source", Value: string(g.Source), Inline: true},
		},
		Timestamp: g.Timestamp.UTC().Format(time.RFC3339),
	})
}

func (n *Notifier) StreamExhausted(ctx context.Context, attempts int) error {
	return n.SendEmbed(ctx, Embed{
		Title:       "Stream Exhausted",
		Description: fmt.Sprintf("Reconnect ceiling reached after %d attempts; polling fallback active.", attempts),
		Color:       ColorRed,
	})
}

// GoalConsumer adapts the notifier to the fanout. Each delivery posts one
// webhook; failures are reported back and isolated by the fanout.
type GoalConsumer struct {
	notifier *Notifier
}

func NewGoalConsumer(n *Notifier) *GoalConsumer {
	return &GoalConsumer{notifier: n}
}

var _ events.Consumer = (*GoalConsumer)(nil)

func (c *GoalConsumer) OnGoal(g events.GoalEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.notifier.GoalAlert(ctx, g)
}
