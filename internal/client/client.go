// Package client talks to a running codechat server over its view channel.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/codechat/internal/metrics"
	"github.com/raphaelgruber/codechat/internal/render"
	"github.com/raphaelgruber/codechat/internal/view"
)

// DefaultURL is the view channel of a server on the default address.
const DefaultURL = "ws://localhost:8484/ws"

// ErrNotConfigured is returned by Ask when the server has no completion
// endpoint configured.
var ErrNotConfigured = errors.New("server has no API key or API URL configured")

// Client is a connected view-channel client. Send and Recv may be used from
// different goroutines.
type Client struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex // serializes writes
	closed bool
}

// Dial connects to the view channel at rawURL.
// If rawURL is empty, uses CODECHAT_SERVER_URL or DefaultURL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	u, err := url.Parse(resolveURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Client{url: u.String(), conn: conn}, nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// Send writes one view event.
func (c *Client) Send(ev view.Event) error {
	data, err := view.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type(), err)
	}
	return nil
}

// Recv reads the next host message.
func (c *Client) Recv() (view.HostMessage, error) {
	var msg view.HostMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		return view.HostMessage{}, fmt.Errorf("read message: %w", err)
	}
	return msg, nil
}

// Ask sends prompt and calls onResponse with every transcript update until
// the server clears the prompt box, which marks the end of the turn. It
// returns the final transcript.
func (c *Client) Ask(ctx context.Context, prompt string, onResponse func(string)) (string, error) {
	return c.Turn(ctx, view.Prompt{Value: prompt}, onResponse)
}

// Turn sends an event that starts a turn (a prompt or a preset) and follows
// it like Ask.
func (c *Client) Turn(ctx context.Context, ev view.Event, onResponse func(string)) (string, error) {
	if err := c.Send(ev); err != nil {
		return "", err
	}

	// Unblock Recv on cancellation without closing the connection.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var last string
	prompts := 0
	for {
		msg, err := c.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, err
		}

		switch msg.Type {
		case view.TypeAddResponse:
			if msg.Value == render.NotConfiguredMessage {
				return "", ErrNotConfigured
			}
			last = msg.Value
			if onResponse != nil {
				onResponse(msg.Value)
			}
		case view.TypeSetPrompt:
			// the first setPrompt echoes the prompt, the second clears it
			prompts++
			if prompts >= 2 && msg.Value == "" {
				return last, nil
			}
		}
	}
}

// Await reads host messages until the next transcript and returns it.
func (c *Client) Await(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		msg, err := c.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		if msg.Type == view.TypeAddResponse {
			return msg.Value, nil
		}
	}
}

// Stats fetches the server's runtime statistics from its /stats endpoint.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	return FetchStats(ctx, c.url)
}

// FetchStats fetches the runtime statistics of the server whose view channel
// is at rawURL without opening a panel.
func FetchStats(ctx context.Context, rawURL string) (*metrics.Snapshot, error) {
	u, err := url.Parse(resolveURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	u.Path = "/stats"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &snap, nil
}

// resolveURL applies the defaults for an empty URL and maps http schemes to
// their websocket equivalents.
func resolveURL(rawURL string) string {
	if rawURL == "" {
		rawURL = os.Getenv("CODECHAT_SERVER_URL")
	}
	if rawURL == "" {
		rawURL = DefaultURL
	}
	rawURL = strings.Replace(rawURL, "http://", "ws://", 1)
	return strings.Replace(rawURL, "https://", "wss://", 1)
}
