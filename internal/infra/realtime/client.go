package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
)

// ConnState is the connection state reported to a Handler.
type ConnState string

const (
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// Handler receives decoded envelopes and connection state changes.
// Calls are made from the client goroutine, one at a time.
type Handler interface {
	HandleEnvelope(env Envelope)
	HandleConnState(state ConnState)
}

// TokenSource returns a bearer token for the next dial.
type TokenSource func(ctx context.Context) (string, error)

// Client keeps one feed subscription alive, redialing after failures.
type Client struct {
	url    string
	tokens TokenSource
	retry  time.Duration
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewClient(url string, tokens TokenSource, retry time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		tokens: tokens,
		retry:  retry,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Run blocks until ctx is done. Every successful dial is reported as
// StateConnected, every loss of an established or attempted connection as
// StateDisconnected (consecutive duplicates are suppressed).
func (c *Client) Run(ctx context.Context, h Handler) error {
	last := ConnState("")
	report := func(s ConnState) {
		if s != last {
			last = s
			h.HandleConnState(s)
		}
	}

	for {
		err := c.session(ctx, h, func() { report(StateConnected) })
		if ctx.Err() != nil {
			return nil
		}
		report(StateDisconnected)
		c.logger.Warn("Realtime feed disconnected", "url", c.url, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.retry):
		}
	}
}

func (c *Client) session(ctx context.Context, h Handler, onConnect func()) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return errors.Wrap(err, "get token")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	onConnect()
	c.logger.Info("Realtime feed connected", "url", c.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("Skipping malformed realtime message", "error", err)
			continue
		}
		h.HandleEnvelope(env)
	}
}
