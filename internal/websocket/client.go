// Package websocket maintains the realtime Socket.IO channel to the Chatty
// backend: at most one connection, scoped to the authenticated user, carrying
// the live online-user roster.
package websocket

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/chattyhq/chatty-cli/pkg/logger"
)

// EventOnlineUsers carries the full online-user roster. Each payload
// replaces the previous roster wholesale.
const EventOnlineUsers = "getOnlineUsers"

// conn is the slice of the Socket.IO socket surface the manager needs.
// Tests substitute a fake; production wraps *socket.Socket.
type conn interface {
	Disconnect()
	Connected() bool
}

// dialFn opens a connection and wires its event handlers. It is a test seam;
// the default dials Socket.IO.
type dialFn func(serverURL, userID, token string, onRoster func([]string), debug bool) (conn, error)

// Client owns the single realtime connection and the roster it receives.
//
// Connect is idempotent while a connection is open, Disconnect while closed.
// There is no automatic reconnection: a connection error is reported and the
// session stays valid without a live channel; reconnecting is a caller-driven
// retry of Connect.
type Client struct {
	serverURL string
	debug     bool
	dial      dialFn

	mu       sync.RWMutex
	sock     conn
	online   []string
	onRoster func(ids []string)
}

// NewClient creates a channel manager for the given server.
func NewClient(serverURL string, debug bool) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		debug:     debug,
		dial:      dialSocketIO,
	}
}

// OnRoster registers the callback invoked after each roster replacement.
// The callback receives the new roster; it must not call back into Connect
// or Disconnect synchronously.
func (c *Client) OnRoster(fn func(ids []string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRoster = fn
}

// Connect opens the realtime connection, presenting the user id and the
// credential as handshake parameters. A no-op while the connection is live;
// a handle whose connection has dropped is discarded and redialed.
func (c *Client) Connect(userID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sock != nil {
		if c.sock.Connected() {
			return nil
		}
		c.sock.Disconnect()
		c.sock = nil
		c.online = nil
	}

	sock, err := c.dial(c.serverURL, userID, token, c.replaceRoster, c.debug)
	if err != nil {
		return fmt.Errorf("realtime connect: %w", err)
	}
	c.sock = sock
	return nil
}

// Disconnect closes the connection and discards the handle. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.online = nil
	c.mu.Unlock()

	if sock != nil {
		sock.Disconnect()
	}
}

// IsConnected reports whether a live connection is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sock != nil && c.sock.Connected()
}

// OnlineUsers returns a copy of the current roster.
func (c *Client) OnlineUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.online...)
}

// replaceRoster installs a wholesale roster replacement and republishes it.
func (c *Client) replaceRoster(ids []string) {
	c.mu.Lock()
	c.online = ids
	fn := c.onRoster
	c.mu.Unlock()

	if fn != nil {
		fn(ids)
	}
}

// socketConn adapts *socket.Socket to the conn surface.
type socketConn struct {
	s *socket.Socket
}

func (c *socketConn) Disconnect() {
	c.s.Disconnect()
}

func (c *socketConn) Connected() bool {
	return c.s.Connected()
}

// handshakeURI appends the user id as a handshake query parameter. The
// backend reads userId from the handshake query, not from the auth payload,
// so it has to ride the connection URI.
func handshakeURI(serverURL, userID string) string {
	if userID == "" {
		return serverURL
	}
	return serverURL + "?userId=" + url.QueryEscape(userID)
}

// dialSocketIO opens a Socket.IO connection and registers event handlers.
func dialSocketIO(serverURL, userID, token string, onRoster func([]string), debug bool) (conn, error) {
	opts := socket.DefaultOptions()
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token": token,
	})

	sock, err := socket.Connect(handshakeURI(serverURL, userID), opts)
	if err != nil {
		return nil, err
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		if debug {
			logger.Debugf("realtime connected: id=%s", sock.Id())
		}
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		if debug {
			logger.Debugf("realtime disconnected: %s", reason)
		}
	})

	// Connection errors are reported but never fatal. The session remains
	// valid without a live channel.
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Errorf("realtime connection error: %v", args[0])
		}
	})

	sock.On(types.EventName(EventOnlineUsers), func(args ...any) {
		if len(args) == 0 {
			return
		}
		onRoster(rosterFromPayload(args[0]))
	})

	return &socketConn{s: sock}, nil
}

// rosterFromPayload converts a raw event payload into the ordered user-id
// list. Non-string entries are skipped.
func rosterFromPayload(payload any) []string {
	switch v := payload.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return nil
	}
}
