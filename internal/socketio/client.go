// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPath is the server's Engine.IO endpoint.
	DefaultPath = "/socket.io/"

	// DefaultReconnectAttempts matches the chat server deployment.
	DefaultReconnectAttempts = 5

	// DefaultReconnectDelay is the constant wait between attempts.
	DefaultReconnectDelay = 1 * time.Second

	// DefaultHandshakeTimeout bounds dial plus the CONNECT round trip.
	DefaultHandshakeTimeout = 10 * time.Second

	// Disconnect reasons, named as the reference JavaScript client names them.
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotConnected is returned by Emit while no session is established.
	ErrNotConnected = errors.New("socket is not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("socket is closed")

	// ErrAlreadyStarted is returned by a second Connect.
	ErrAlreadyStarted = errors.New("socket already started")

	// ErrReconnectFailed is reported once every reconnect attempt failed.
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
)

// ConnectError describes a failed connection attempt. Rejected is true when
// the server answered CONNECT with CONNECT_ERROR, which is never retried.
type ConnectError struct {
	Rejected bool
	Message  string
	Data     json.RawMessage
	Cause    error
}

// Error implements error.
func (e *ConnectError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("connection rejected: %s", e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("connect failed: %v", e.Cause)
	}
	return "connect failed: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *ConnectError) Unwrap() error {
	return e.Cause
}

// IsRejected reports whether err is a server-side connection rejection.
func IsRejected(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Rejected
}

// =============================================================================
// CONFIG
// =============================================================================

// Config configures a Client.
type Config struct {
	// URL is the server origin (http, https, ws or wss).
	URL string

	// Path is the Engine.IO endpoint. Defaults to DefaultPath.
	Path string

	// Namespace defaults to "/".
	Namespace string

	// Auth is sent as the CONNECT payload.
	Auth map[string]any

	// Query is appended to the handshake URL.
	Query url.Values

	// Header is sent with the WebSocket upgrade request.
	Header http.Header

	// DisableReconnect turns off automatic reconnection.
	DisableReconnect bool

	// ReconnectAttempts caps consecutive failed attempts.
	ReconnectAttempts int

	// ReconnectDelay is the constant wait between attempts.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds each connection attempt.
	HandshakeTimeout time.Duration

	// Logger receives protocol diagnostics. Defaults to a discarding logger.
	Logger *log.Logger

	// Dialer overrides the WebSocket dialer.
	Dialer *websocket.Dialer
}

func (c *Config) fillDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.Namespace == "" {
		c.Namespace = "/"
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard)
	}
	if c.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = c.HandshakeTimeout
		c.Dialer = &d
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Handler receives the first argument of an inbound event, or JSON null when
// the event carried none.
type Handler func(payload json.RawMessage)

// Client is a Socket.IO client. Handlers run on the read goroutine, one at a
// time, in arrival order.
type Client struct {
	cfg Config

	mu               sync.RWMutex
	handlers         map[string]Handler
	onConnect        func()
	onDisconnect     func(reason string)
	onConnectError   func(err error)
	conn             *websocket.Conn
	sid              string
	connected        bool
	started          bool
	closed           bool
	writeMu          sync.Mutex
	closing          chan struct{}
	done             chan struct{}
	closeOnce        sync.Once
	cancel           context.CancelFunc
	serverDisconnect bool
}

// New creates a client. Nothing is dialed until Connect.
func New(cfg Config) *Client {
	cfg.fillDefaults()
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// On registers the handler for an event, replacing any previous one.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// OnConnect is called each time a session is established.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// OnDisconnect is called each time an established session ends.
func (c *Client) OnDisconnect(fn func(reason string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// OnConnectError is called for each failed attempt and once more with
// ErrReconnectFailed when the client gives up.
func (c *Client) OnConnectError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectError = fn
}

// Connect starts the connection manager in the background and returns
// immediately. Progress is reported through the registered callbacks.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Connected reports whether a session is established.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ID returns the Socket.IO session id, empty while disconnected.
func (c *Client) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid
}

// Done is closed when the connection manager exits for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Emit sends an event with the given arguments.
func (c *Client) Emit(event string, args ...any) error {
	c.mu.RLock()
	conn, connected, closed := c.conn, c.connected, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !connected || conn == nil {
		return ErrNotConnected
	}

	pkt, err := NewEvent(c.cfg.Namespace, event, args...)
	if err != nil {
		return err
	}
	return c.writeFrame(conn, string(eioMessage)+pkt.Encode())
}

// Close disconnects and stops reconnecting. It is safe to call repeatedly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn, connected, started, cancel := c.conn, c.connected, c.started, c.cancel
		c.mu.Unlock()

		close(c.closing)
		if cancel != nil {
			defer cancel()
		}

		if conn != nil {
			if connected {
				disc := Packet{Type: PacketDisconnect, Namespace: c.cfg.Namespace, ID: -1}
				_ = c.writeFrame(conn, string(eioMessage)+disc.Encode())
			}
			_ = conn.Close()
		}
		if !started {
			close(c.done)
		}
	})
	return nil
}

// =============================================================================
// CONNECTION MANAGER
// =============================================================================

func (c *Client) reconnectPolicy() backoff.BackOff {
	return backoff.WithMaxRetries(
		backoff.NewConstantBackOff(c.cfg.ReconnectDelay),
		uint64(c.cfg.ReconnectAttempts),
	)
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	policy := c.reconnectPolicy()
	for {
		established, err := c.session(ctx)
		if established {
			policy.Reset()
		}

		if c.isClosed() || ctx.Err() != nil {
			return
		}
		if IsRejected(err) {
			c.cfg.Logger.Debug("connection rejected, not retrying", "err", err)
			return
		}
		if c.takeServerDisconnect() {
			c.cfg.Logger.Debug("server closed the session, not retrying")
			return
		}
		if c.cfg.DisableReconnect {
			return
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			c.fireConnectError(ErrReconnectFailed)
			return
		}
		c.cfg.Logger.Debug("reconnecting", "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-c.closing:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// session runs one connection from dial to teardown. established reports
// whether the CONNECT handshake succeeded.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	endpoint, err := c.endpoint()
	if err != nil {
		ce := &ConnectError{Cause: err}
		c.fireConnectError(ce)
		return false, ce
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, resp, err := c.cfg.Dialer.DialContext(dialCtx, endpoint, c.cfg.Header)
	cancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		ce := &ConnectError{Cause: err}
		c.fireConnectError(ce)
		return false, ce
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	// Close the socket if the caller's context ends mid-session.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	hs, sid, err := c.handshake(conn)
	if err != nil {
		conn.Close()
		c.clearConn(conn)
		c.fireConnectError(err)
		return false, err
	}

	c.mu.Lock()
	c.sid = sid
	c.connected = true
	onConnect := c.onConnect
	c.mu.Unlock()

	c.cfg.Logger.Debug("socket connected", "sid", sid, "ping_interval", hs.PingInterval)
	if onConnect != nil {
		onConnect()
	}

	reason := c.readLoop(conn, hs)
	conn.Close()

	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.sid = ""
	if c.conn == conn {
		c.conn = nil
	}
	if c.closed {
		reason = ReasonClientDisconnect
	}
	onDisconnect := c.onDisconnect
	c.mu.Unlock()

	c.cfg.Logger.Debug("socket disconnected", "reason", reason)
	if wasConnected && onDisconnect != nil {
		onDisconnect(reason)
	}
	return true, nil
}

// handshake reads the Engine.IO open packet, sends CONNECT and waits for the
// server's verdict.
func (c *Client) handshake(conn *websocket.Conn) (handshake, string, error) {
	var hs handshake
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)

	_, data, err := conn.ReadMessage()
	if err != nil {
		return hs, "", &ConnectError{Cause: fmt.Errorf("read open packet: %w", err)}
	}
	if len(data) == 0 || data[0] != eioOpen {
		return hs, "", &ConnectError{Message: fmt.Sprintf("unexpected first packet %q", data)}
	}
	if err := json.Unmarshal(data[1:], &hs); err != nil {
		return hs, "", &ConnectError{Cause: fmt.Errorf("decode open packet: %w", err)}
	}

	connect := Packet{Type: PacketConnect, Namespace: c.cfg.Namespace, ID: -1}
	if len(c.cfg.Auth) > 0 {
		auth, err := json.Marshal(c.cfg.Auth)
		if err != nil {
			return hs, "", &ConnectError{Cause: fmt.Errorf("encode auth: %w", err)}
		}
		connect.Data = auth
	}
	if err := c.writeFrame(conn, string(eioMessage)+connect.Encode()); err != nil {
		return hs, "", &ConnectError{Cause: err}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return hs, "", &ConnectError{Cause: fmt.Errorf("await connect: %w", err)}
		}
		if len(data) == 0 {
			continue
		}
		switch data[0] {
		case eioPing:
			if err := c.writeFrame(conn, string(eioPong)); err != nil {
				return hs, "", &ConnectError{Cause: err}
			}
			continue
		case eioClose:
			return hs, "", &ConnectError{Message: "server closed during handshake"}
		case eioMessage:
		default:
			continue
		}

		pkt, err := DecodePacket(string(data[1:]))
		if err != nil || pkt.Namespace != c.cfg.Namespace {
			continue
		}
		switch pkt.Type {
		case PacketConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			_ = json.Unmarshal(pkt.Data, &ack)
			return hs, ack.SID, nil
		case PacketConnectError:
			return hs, "", rejection(pkt.Data)
		}
	}
}

func rejection(data json.RawMessage) *ConnectError {
	ce := &ConnectError{Rejected: true, Data: data}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		ce.Message = obj.Message
	} else if s := strings.TrimSpace(string(data)); s != "" {
		ce.Message = strings.Trim(s, `"`)
	} else {
		ce.Message = "unauthorized"
	}
	return ce
}

// readLoop dispatches packets until the connection ends and returns the
// disconnect reason.
func (c *Client) readLoop(conn *websocket.Conn, hs handshake) string {
	// The server pings every PingInterval; silence beyond interval+timeout
	// means the link is dead.
	window := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	if window <= 0 {
		window = 45 * time.Second
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(window))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				return ReasonPingTimeout
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return ReasonTransportClose
			case websocket.IsUnexpectedCloseError(err):
				return ReasonTransportError
			default:
				return ReasonTransportClose
			}
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case eioPing:
			if err := c.writeFrame(conn, string(eioPong)); err != nil {
				return ReasonTransportError
			}
		case eioClose:
			return ReasonTransportClose
		case eioMessage:
			if reason, done := c.handlePacket(string(data[1:])); done {
				return reason
			}
		case eioNoop, eioPong, eioUpgrade:
		default:
			c.cfg.Logger.Debug("ignoring engine.io packet", "type", string(data[0]))
		}
	}
}

func (c *Client) handlePacket(raw string) (reason string, done bool) {
	pkt, err := DecodePacket(raw)
	if err != nil {
		c.cfg.Logger.Warn("dropping packet", "err", err)
		return "", false
	}
	if pkt.Namespace != c.cfg.Namespace {
		return "", false
	}

	switch pkt.Type {
	case PacketDisconnect:
		c.mu.Lock()
		c.serverDisconnect = true
		c.mu.Unlock()
		return ReasonServerDisconnect, true
	case PacketEvent:
		name, args, err := pkt.Event()
		if err != nil {
			c.cfg.Logger.Warn("dropping event", "err", err)
			return "", false
		}
		c.dispatch(name, args)
	case PacketConnectError:
		c.fireConnectError(rejection(pkt.Data))
	}
	return "", false
}

func (c *Client) dispatch(name string, args []json.RawMessage) {
	c.mu.RLock()
	h := c.handlers[name]
	c.mu.RUnlock()

	if h == nil {
		c.cfg.Logger.Debug("no handler for event", "event", name)
		return
	}
	payload := json.RawMessage("null")
	if len(args) > 0 {
		payload = args[0]
	}
	h(payload)
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", c.cfg.URL)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(c.cfg.Path, "/")
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	q := url.Values{}
	for k, vs := range c.cfg.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) writeFrame(conn *websocket.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) fireConnectError(err error) {
	c.mu.RLock()
	fn, closed := c.onConnectError, c.closed
	c.mu.RUnlock()
	if fn != nil && !closed {
		fn(err)
	}
}

func (c *Client) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) takeServerDisconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.serverDisconnect
	c.serverDisconnect = false
	return v
}
