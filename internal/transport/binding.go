// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/mariechat/internal/protocol"
	"github.com/jeranaias/mariechat/internal/socketio"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the connection state as the rest of the client sees it.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMissingToken is reported when Initialize is called without a token.
	ErrMissingToken = errors.New("no auth token provided")

	// ErrNotConnected is returned by Emit before the server acknowledged
	// the connection.
	ErrNotConnected = errors.New("not connected to chat server")
)

// =============================================================================
// SOCKET
// =============================================================================

// Socket is the subset of the Socket.IO client the binding drives.
// *socketio.Client satisfies it.
type Socket interface {
	On(event string, h socketio.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(reason string))
	OnConnectError(fn func(err error))
	Connect(ctx context.Context) error
	Emit(event string, args ...any) error
	Close() error
}

// Dialer creates a socket for the given configuration without connecting it.
type Dialer func(cfg socketio.Config) Socket

func defaultDialer(cfg socketio.Config) Socket {
	return socketio.New(cfg)
}

// RoomTracker is the room membership the binding restores after a reconnect.
type RoomTracker interface {
	// RejoinTarget returns the conversation that should be joined on a new
	// connection.
	RejoinTarget() (string, bool)

	// MarkJoined is called right after join_conversation was emitted for id
	// on the current connection.
	MarkJoined(id string)

	// Disconnected invalidates every room's readiness.
	Disconnected()
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds the connection settings.
type Config struct {
	ServerURL         string
	Path              string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
}

// Option configures a Binding.
type Option func(*Binding)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithDialer replaces the socket factory.
func WithDialer(d Dialer) Option {
	return func(b *Binding) {
		if d != nil {
			b.dial = d
		}
	}
}

// WithDebugHook receives every socket the binding creates, before it
// connects. Use it to attach diagnostics.
func WithDebugHook(fn func(Socket)) Option {
	return func(b *Binding) {
		b.debugHook = fn
	}
}

// WithRoomTracker sets the room membership restored on reconnect.
func WithRoomTracker(r RoomTracker) Option {
	return func(b *Binding) {
		b.rooms = r
	}
}

// =============================================================================
// BINDING
// =============================================================================

// Binding owns the authenticated socket: its lifecycle, its status and the
// routing of inbound events to Handlers.
type Binding struct {
	cfg       Config
	logger    *log.Logger
	dial      Dialer
	debugHook func(Socket)

	handlers atomic.Pointer[Handlers]
	status   atomic.Int32

	mu     sync.Mutex
	socket Socket
	token  string
	rooms  RoomTracker

	// dead is set once the socket stopped reconnecting for good.
	dead bool
}

// New creates a binding. Nothing connects until Initialize.
func New(cfg Config, opts ...Option) *Binding {
	b := &Binding{
		cfg:    cfg,
		logger: log.New(io.Discard),
		dial:   defaultDialer,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.handlers.Store(&Handlers{})
	return b
}

// SetHandlers replaces the handler set. Events dispatched afterwards see the
// new set.
func (b *Binding) SetHandlers(h Handlers) {
	b.handlers.Store(&h)
}

// SetRoomTracker sets the room membership restored on reconnect.
func (b *Binding) SetRoomTracker(r RoomTracker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = r
}

// Status returns the current connection status.
func (b *Binding) Status() Status {
	return Status(b.status.Load())
}

// Connected reports whether the server acknowledged the connection.
func (b *Binding) Connected() bool {
	return b.Status() == StatusConnected
}

// Token returns the token of the live socket.
func (b *Binding) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

// Initialize opens an authenticated socket. A second call with the same
// token is a no-op while that socket is alive or still retrying; a
// different token, or a socket that gave up, is replaced.
func (b *Binding) Initialize(ctx context.Context, token string) error {
	if token == "" {
		b.setStatus(StatusDisconnected)
		b.handlers.Load().fireError(ErrMissingToken)
		return ErrMissingToken
	}

	b.mu.Lock()
	if b.socket != nil && b.token == token && !b.dead {
		b.mu.Unlock()
		return nil
	}
	old := b.socket
	b.socket = nil
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	s := b.dial(socketio.Config{
		URL:               b.cfg.ServerURL,
		Path:              b.cfg.Path,
		Auth:              map[string]any{"token": token},
		Query:             map[string][]string{"token": {token}},
		Header:            http.Header{"Authorization": {"Bearer " + token}},
		ReconnectAttempts: b.cfg.ReconnectAttempts,
		ReconnectDelay:    b.cfg.ReconnectDelay,
		HandshakeTimeout:  b.cfg.HandshakeTimeout,
		Logger:            b.logger.WithPrefix("socketio"),
	})

	// Every listener goes on before Connect so no early event is missed.
	b.register(s)
	if b.debugHook != nil {
		b.debugHook(s)
	}

	b.mu.Lock()
	b.socket = s
	b.token = token
	b.dead = false
	b.mu.Unlock()

	b.setStatus(StatusConnecting)
	b.logger.Debug("connecting", "server", b.cfg.ServerURL)
	if err := s.Connect(ctx); err != nil {
		b.mu.Lock()
		if b.socket == s {
			b.socket = nil
			b.token = ""
		}
		b.mu.Unlock()
		b.setStatus(StatusDisconnected)
		b.handlers.Load().fireError(err)
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Teardown closes the socket. Safe to call repeatedly.
func (b *Binding) Teardown() {
	b.mu.Lock()
	s := b.socket
	b.socket = nil
	b.token = ""
	rooms := b.rooms
	b.mu.Unlock()

	b.setStatus(StatusDisconnected)
	if s == nil {
		return
	}
	_ = s.Close()
	if rooms != nil {
		rooms.Disconnected()
	}
	b.logger.Debug("socket torn down")
}

// Emit sends an event to the server.
func (b *Binding) Emit(event string, payload any) error {
	b.mu.Lock()
	s := b.socket
	b.mu.Unlock()

	if s == nil || !b.Connected() {
		return ErrNotConnected
	}
	if err := s.Emit(event, payload); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	b.logger.Debug("emit", "event", event)
	return nil
}

func (b *Binding) setStatus(s Status) {
	b.status.Store(int32(s))
}

// current reports whether s is still the live socket. Callbacks from a
// replaced socket are dropped.
func (b *Binding) current(s Socket) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.socket == s
}

// =============================================================================
// LIFECYCLE CALLBACKS
// =============================================================================

func (b *Binding) register(s Socket) {
	s.OnConnect(func() {
		if !b.current(s) {
			return
		}
		// The transport is up; the server still has to acknowledge auth.
		b.status.CompareAndSwap(int32(StatusDisconnected), int32(StatusConnecting))
	})

	s.OnDisconnect(func(reason string) {
		if !b.current(s) {
			return
		}
		b.setStatus(StatusDisconnected)
		b.mu.Lock()
		rooms := b.rooms
		// The socket does not retry after the server closed the session.
		if reason == socketio.ReasonServerDisconnect {
			b.dead = true
		}
		b.mu.Unlock()
		if rooms != nil {
			rooms.Disconnected()
		}
		b.logger.Info("disconnected", "reason", reason)
		h := b.handlers.Load()
		if h.OnDisconnected != nil {
			b.guard("disconnect", func() { h.OnDisconnected(reason) })
		}
	})

	s.OnConnectError(func(err error) {
		if !b.current(s) {
			return
		}
		if terminal(err) {
			b.mu.Lock()
			b.dead = true
			b.mu.Unlock()
			b.setStatus(StatusDisconnected)
		} else {
			// The socket retries on its own.
			b.setStatus(StatusConnecting)
		}
		b.logger.Warn("connection error", "err", err)
		b.handlers.Load().fireError(err)
	})

	s.On(protocol.EventConnected, func(raw json.RawMessage) {
		if !b.current(s) {
			return
		}
		var ack protocol.Connected
		_ = json.Unmarshal(raw, &ack)
		b.onConnected(s, ack)
	})

	s.On(protocol.EventError, func(raw json.RawMessage) {
		if !b.current(s) {
			return
		}
		se := protocol.DecodeServerError(raw)
		b.logger.Warn("server error", "message", se.Message)
		h := b.handlers.Load()
		if h.OnServerError != nil {
			b.guard(protocol.EventError, func() { h.OnServerError(se) })
		}
	})

	route(b, s, protocol.EventStreamStart, func(h *Handlers) func(protocol.StreamStart) { return h.OnStreamStart })
	route(b, s, protocol.EventStreamChunk, func(h *Handlers) func(protocol.StreamChunk) { return h.OnStreamChunk })
	route(b, s, protocol.EventStreamEnd, func(h *Handlers) func(protocol.StreamEnd) { return h.OnStreamEnd })
	route(b, s, protocol.EventMessageResponse, func(h *Handlers) func(protocol.MessageResponse) { return h.OnMessageResponse })
	route(b, s, protocol.EventMessageReceived, func(h *Handlers) func(protocol.MessageReceived) { return h.OnMessageReceived })
	route(b, s, protocol.EventTranscriptionResult, func(h *Handlers) func(protocol.TranscriptionResult) { return h.OnTranscription })
	route(b, s, protocol.EventTTSResult, func(h *Handlers) func(protocol.TTSResult) { return h.OnTTS })
	route(b, s, protocol.EventUserTyping, func(h *Handlers) func(protocol.UserTyping) { return h.OnUserTyping })
	route(b, s, protocol.EventImageProgress, func(h *Handlers) func(protocol.ImageProgress) { return h.OnImageProgress })
	route(b, s, protocol.EventImageError, func(h *Handlers) func(protocol.ImageError) { return h.OnImageError })
	route(b, s, protocol.EventJoinedConversation, func(h *Handlers) func(protocol.ConversationRef) { return h.OnJoined })
	route(b, s, protocol.EventLeftConversation, func(h *Handlers) func(protocol.ConversationRef) { return h.OnLeft })
	route(b, s, protocol.EventGenerationStopped, func(h *Handlers) func(protocol.ConversationRef) { return h.OnGenerationStopped })
}

// terminal reports whether a connect error ends the socket's retries.
func terminal(err error) bool {
	return socketio.IsRejected(err) || errors.Is(err, socketio.ErrReconnectFailed)
}

// onConnected runs on the server's post-auth acknowledgment: the only place
// the status becomes connected, and the only place a rejoin is emitted.
func (b *Binding) onConnected(s Socket, ack protocol.Connected) {
	b.setStatus(StatusConnected)
	b.logger.Info("connected", "user", ack.UserID)

	h := b.handlers.Load()
	if h.OnConnected != nil {
		b.guard(protocol.EventConnected, func() { h.OnConnected(ack) })
	}

	b.mu.Lock()
	rooms := b.rooms
	b.mu.Unlock()
	if rooms == nil {
		return
	}
	id, ok := rooms.RejoinTarget()
	if !ok {
		return
	}
	if err := s.Emit(protocol.CmdJoinConversation, protocol.JoinConversation{ConversationID: id}); err != nil {
		b.logger.Warn("rejoin failed", "conversation", id, "err", err)
		h.fireError(fmt.Errorf("rejoin %s: %w", id, err))
		return
	}
	b.logger.Debug("rejoined", "conversation", id)
	rooms.MarkJoined(id)
}

// route registers a typed listener for event. The handler is looked up on
// every dispatch, so SetHandlers takes effect immediately.
func route[T any](b *Binding, s Socket, event string, pick func(*Handlers) func(T)) {
	s.On(event, func(raw json.RawMessage) {
		if !b.current(s) {
			return
		}
		h := b.handlers.Load()
		fn := pick(h)
		if fn == nil {
			return
		}
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			b.logger.Warn("malformed event", "event", event, "err", err)
			h.fireError(fmt.Errorf("decode %s: %w", event, err))
			return
		}
		b.guard(event, func() { fn(payload) })
	})
}

// guard keeps a panicking handler from killing the read goroutine.
func (b *Binding) guard(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "event", event, "panic", r)
		}
	}()
	fn()
}
