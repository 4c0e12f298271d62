package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"goalfeed/internal/telemetry"
)

var (
	// ErrClosed is returned by Receive after Close was called locally.
	ErrClosed = errors.New("stream: connection closed")

	// ErrExhausted is returned by the listener once the reconnect attempt
	// ceiling is exceeded. It is a state transition, not a process failure.
	ErrExhausted = errors.New("stream: reconnect attempts exhausted")
)

// TransientError marks a retryable network failure: connection drop,
// heartbeat timeout, dial failure. The listener retries these through
// the backoff policy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("stream: %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable network failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Conn is one persistent duplex connection to the event provider.
type Conn interface {
	// Subscribe sends the declarative subscription for goal channels.
	Subscribe(req SubscribeRequest) error
	// Receive blocks for the next raw message. It returns ErrClosed after a
	// local Close, or a TransientError on unexpected closure or heartbeat
	// timeout; never a silent end-of-stream.
	Receive() ([]byte, error)
	// Close releases the transport. Idempotent.
	Close() error
}

// Dialer opens stream connections. The listener holds one and redials
// through it on every reconnect attempt.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

const defaultReadTimeout = 90 * time.Second

// WSDialer dials the provider's WebSocket endpoint with API-key headers.
type WSDialer struct {
	URL         string
	APIKey      string
	APIHost     string
	ReadTimeout time.Duration
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if d.APIKey != "" {
		header.Set("x-rapidapi-key", d.APIKey)
		header.Set("x-rapidapi-host", d.APIHost)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, d.URL, header)
	if err != nil {
		return nil, &TransientError{Op: "dial", Err: err}
	}

	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	c := &wsConn{ws: ws, readTimeout: readTimeout, closed: make(chan struct{})}

	// Server pings double as heartbeats: reset the deadline so quiet
	// periods don't trigger a timeout while the connection is healthy.
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(readTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	telemetry.Infof("stream: connected to %s", d.URL)
	return c, nil
}

type wsConn struct {
	ws          *websocket.Conn
	readTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *wsConn) Subscribe(req SubscribeRequest) error {
	if err := c.ws.WriteJSON(req); err != nil {
		return &TransientError{Op: "subscribe", Err: err}
	}
	telemetry.Infof("stream: subscribed to %d leagues", len(req.Leagues))
	return nil
}

func (c *wsConn) Receive() ([]byte, error) {
	c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		return nil, &TransientError{Op: "receive", Err: err}
	}
	return raw, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}
