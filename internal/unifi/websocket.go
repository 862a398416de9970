// Gatewatch - UniFi Console Event Monitoring and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatewatch

package unifi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/gatewatch/internal/logging"
)

// dialWebsocket opens a websocket to the console with the session
// cookies attached to the upgrade request.
func (s *Session) dialWebsocket(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  s.TLSClientConfig(),
	}

	header := http.Header{}
	if cookie := s.CookieHeader(); cookie != "" {
		header.Set("Cookie", cookie)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s failed (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial %s failed: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return conn, nil
}

// readLoop reads messages until error, server close, or context
// cancellation, dispatching each to handle.
//
// Gorilla's default ping handler answers server pings with pongs, so
// keepalive needs no code here. A normal or going-away close returns
// nil; cancellation closes the connection to unblock the in-flight
// read (partial messages are discarded — the codec is stateless across
// messages).
func readLoop(ctx context.Context, conn *websocket.Conn, source string, handle func(msgType int, data []byte)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Str("source", source).Msg("Websocket closed by server")
				return nil
			}
			return fmt.Errorf("%s websocket read: %w", source, err)
		}

		handle(msgType, data)
	}
}
