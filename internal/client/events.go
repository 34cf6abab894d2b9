package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/leadboard/internal/cache"
	"github.com/leadboard/internal/events"
)

// eventsURL turns the API base URL into the websocket endpoint
func (c *Client) eventsURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/events"
}

// Subscribe streams server events to handle until ctx is cancelled or the connection drops.
// Events that change leads also drop the memoized lead pages.
func (c *Client) Subscribe(ctx context.Context, handle func(events.Event)) error {
	header := http.Header{}
	if token := c.session.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}
	conn, resp, err := dialer.DialContext(ctx, c.eventsURL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			c.forceLogout(ctx)
			return ErrUnauthorized
		}
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "event stream unavailable"}
		}
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer conn.Close()

	c.log.Info().Msg("Subscribed to live events")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var e events.Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading event stream: %w", err)
		}

		switch e.Type {
		case events.TypeLeadUpdated, events.TypeLeadsImported:
			c.invalidate(ctx, cache.KeyLeads)
		}
		handle(e)
	}
}
