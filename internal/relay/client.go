package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"goalfeed/internal/events"
	"goalfeed/internal/stream"
	"goalfeed/internal/telemetry"
)

// Client connects to a relay server and hands received goal events to a
// local consumer. Downstream processes use it to tail the feed without
// holding their own provider subscription.
type Client struct {
	addr     string
	consumer events.Consumer
	backoff  stream.Backoff
}

func NewClient(addr string, consumer events.Consumer) *Client {
	return &Client{
		addr:     addr,
		consumer: consumer,
		backoff:  stream.NewBackoff(time.Second, 30*time.Second, 0, nil),
	}
}

// ConnectWithRetry connects to the relay server and reconnects on failure
// with exponential backoff. A connection that lived for over a minute resets
// the attempt counter. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connStart := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connStart) > time.Minute {
			attempt = 0
		}
		attempt++

		delay := c.backoff.Next(attempt)
		if err != nil {
			telemetry.Warnf("relay: connection lost (attempt %d): %v — retrying in %s", attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s/ws", c.addr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	telemetry.Infof("relay: connected to %s", c.addr)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		evt, err := UnmarshalGoal(msg)
		if err != nil {
			telemetry.Warnf("relay: unmarshal error: %v", err)
			continue
		}

		if err := c.consumer.OnGoal(evt); err != nil {
			telemetry.Warnf("relay: consumer error: %v", err)
		}
	}
}
