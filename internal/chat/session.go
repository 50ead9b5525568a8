// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/room"
	"github.com/jeranaias/mariechat/internal/sidechannel"
	"github.com/jeranaias/mariechat/internal/stream"
	"github.com/jeranaias/mariechat/internal/transport"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotAuthenticated is returned when no token is configured.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotConnected is returned when the server has not acknowledged the
	// connection.
	ErrNotConnected = transport.ErrNotConnected

	// ErrStreamInFlight rejects a send while the conversation is still
	// generating.
	ErrStreamInFlight = errors.New("a response is still being generated")

	// ErrEmptyMessage rejects a send with no content, attachments or
	// regenerate flag.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoConversation is returned when an operation needs a conversation
	// and none is selected.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrSendCanceled is returned when the generation was stopped before
	// send_message went out.
	ErrSendCanceled = errors.New("send canceled")

	// ErrNothingToRegenerate is returned when the thread has no user message.
	ErrNothingToRegenerate = errors.New("no user message to regenerate from")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the session settings.
type Config struct {
	// ServerURL is the server origin for both REST and the socket.
	ServerURL  string
	SocketPath string
	Token      string

	// Model and Provider apply when the conversation has none configured.
	Model    string
	Provider string

	// DisableStreaming requests whole responses (message_response).
	DisableStreaming bool

	// JoinSettle is the room settle delay: zero uses room.DefaultSettleDelay
	// and a negative value disables it.
	JoinSettle time.Duration

	// TypingInterval rate-limits outbound typing indicators.
	TypingInterval time.Duration

	Voice    string
	Language string

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	HandshakeTimeout  time.Duration
	RequestTimeout    time.Duration
}

// Archiver stores settled messages outside the session. Store adds
// messages as they settle; Replace swaps in a conversation's full server
// history after a load.
type Archiver interface {
	Store(ctx context.Context, conv model.Conversation, msgs ...model.Message) error
	Replace(ctx context.Context, conv model.Conversation, msgs ...model.Message) error
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger     *log.Logger
	httpClient *http.Client
	dialer     transport.Dialer
	debugHook  func(transport.Socket)
	archiver   Archiver
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient overrides the REST client's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithDialer replaces the socket factory.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithDebugHook exposes each new socket to fn before it connects.
func WithDebugHook(fn func(transport.Socket)) Option {
	return func(o *options) { o.debugHook = fn }
}

// WithArchiver records settled messages.
func WithArchiver(a Archiver) Option {
	return func(o *options) { o.archiver = a }
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind says what changed.
type EventKind int

const (
	// EventStatus: the connection status changed.
	EventStatus EventKind = iota
	// EventMessages: a thread or its stream state changed.
	EventMessages
	// EventError: the error string was set.
	EventError
	// EventConversations: a conversation was created, renamed or deleted.
	EventConversations
	// EventTranscription: speech-to-text result in Text.
	EventTranscription
	// EventSpeech: synthesized audio in Audio, correlated by MessageID.
	EventSpeech
	// EventTyping: another user's typing state changed.
	EventTyping
	// EventImage: image generation progress in Image.
	EventImage
)

// Event is delivered to subscribers after the session state changed.
// Transcription and speech results are delivered once and not retained.
type Event struct {
	Kind           EventKind
	ConversationID string
	Status         transport.Status
	Text           string
	Audio          []byte
	MessageID      string
	Image          sidechannel.Generation
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the chat façade consumed by views. It owns the connection,
// the room membership and one thread per conversation.
//
// Inbound events arrive serially on the socket's read goroutine; commands
// may be issued from any goroutine. State is guarded by one mutex and
// subscribers are called after it is released.
type Session struct {
	cfg      Config
	logger   *log.Logger
	archiver Archiver

	binding *transport.Binding
	rooms   *room.Manager
	api     *api.Client
	audio   *sidechannel.Audio
	typing  *sidechannel.Typing
	images  *sidechannel.Images

	mu      sync.Mutex
	acc     *stream.Accumulator
	threads map[string]*model.Thread
	convs   map[string]model.Conversation
	current string
	errMsg  string

	obsMu     sync.Mutex
	observers map[int]func(Event)
	nextObs   int
}

// New builds a session. Nothing touches the network until Connect.
func New(cfg Config, opts ...Option) *Session {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}

	s := &Session{
		cfg:       cfg,
		logger:    o.logger,
		archiver:  o.archiver,
		acc:       stream.New(),
		threads:   make(map[string]*model.Thread),
		convs:     make(map[string]model.Conversation),
		observers: make(map[int]func(Event)),
	}

	topts := []transport.Option{transport.WithLogger(o.logger.WithPrefix("transport"))}
	if o.dialer != nil {
		topts = append(topts, transport.WithDialer(o.dialer))
	}
	if o.debugHook != nil {
		topts = append(topts, transport.WithDebugHook(o.debugHook))
	}
	s.binding = transport.New(transport.Config{
		ServerURL:         cfg.ServerURL,
		Path:              cfg.SocketPath,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
		HandshakeTimeout:  cfg.HandshakeTimeout,
	}, topts...)

	settle := cfg.JoinSettle
	switch {
	case settle == 0:
		settle = room.DefaultSettleDelay
	case settle < 0:
		settle = 0
	}
	s.rooms = room.New(s.binding, room.WithSettleDelay(settle), room.WithLogger(o.logger.WithPrefix("room")))
	s.binding.SetRoomTracker(s.rooms)

	s.api = api.NewClient(api.Config{
		BaseURL:    cfg.ServerURL,
		Token:      cfg.Token,
		Timeout:    cfg.RequestTimeout,
		Logger:     o.logger.WithPrefix("api"),
		HTTPClient: o.httpClient,
	})

	s.audio = sidechannel.NewAudio(s.binding, cfg.Voice)
	var topt []sidechannel.TypingOption
	if cfg.TypingInterval > 0 {
		topt = append(topt, sidechannel.WithTypingInterval(cfg.TypingInterval))
	}
	s.typing = sidechannel.NewTyping(s.binding, topt...)
	s.images = sidechannel.NewImages()

	s.binding.SetHandlers(s.handlers())
	return s
}

// Connect opens the authenticated socket. It returns once the dial is
// under way; Status reports when the server acknowledged it.
func (s *Session) Connect(ctx context.Context) error {
	if s.cfg.Token == "" {
		return s.fail(ErrNotAuthenticated)
	}
	if err := s.binding.Initialize(ctx, s.cfg.Token); err != nil {
		return s.fail(err)
	}
	return nil
}

// Reconnect drops the current socket and dials a new one. The active
// conversation is rejoined once the server acknowledges the connection.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.cfg.Token == "" {
		return s.fail(ErrNotAuthenticated)
	}
	s.binding.Teardown()
	s.notify(Event{Kind: EventStatus, Status: s.binding.Status()})
	return s.Connect(ctx)
}

// Close tears the connection down. Safe to call repeatedly.
func (s *Session) Close() {
	s.binding.Teardown()
}

// API exposes the REST client for calls the session does not wrap.
func (s *Session) API() *api.Client {
	return s.api
}

// Status returns the connection status.
func (s *Session) Status() transport.Status {
	return s.binding.Status()
}

// RoomReady reports whether the conversation's room is joined and settled.
func (s *Session) RoomReady(id string) bool {
	return s.rooms.Ready(id)
}

// Voice returns the default TTS voice.
func (s *Session) Voice() string {
	return s.audio.Voice()
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// Snapshot is a read-only copy of one conversation's view state.
type Snapshot struct {
	Status         transport.Status
	ConversationID string
	Conversation   model.Conversation
	Messages       []model.Message
	Stream         stream.State
	Typists        []string
	Image          sidechannel.Generation
	HasImage       bool
	Error          string
}

// Snapshot returns the state of the current conversation.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	return s.SnapshotOf(id)
}

// SnapshotOf returns the state of any conversation.
func (s *Session) SnapshotOf(id string) Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ConversationID: id,
		Conversation:   s.convs[id],
		Stream:         s.acc.State(id),
		Error:          s.errMsg,
	}
	if th, ok := s.threads[id]; ok {
		snap.Messages = th.Messages()
	}
	s.mu.Unlock()

	if snap.Conversation.ID == "" {
		snap.Conversation.ID = id
	}
	snap.Status = s.binding.Status()
	snap.Typists = s.typing.Typists(id)
	snap.Image, snap.HasImage = s.images.Get(id)
	return snap
}

// Messages returns a copy of a conversation's thread.
func (s *Session) Messages(id string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if th, ok := s.threads[id]; ok {
		return th.Messages()
	}
	return nil
}

// Current returns the conversation the view is showing.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Conversations returns the known conversation documents.
func (s *Session) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, c)
	}
	return out
}

// Error returns the last user-visible error.
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// ClearError resets the error string.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for state change events and returns a function
// that removes it. fn runs on the goroutine that caused the change and must
// not block.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

func (s *Session) notify(ev Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// fail records err as the visible error and returns it.
func (s *Session) fail(err error) error {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
	s.logger.Warn("chat error", "err", err)
	s.notify(Event{Kind: EventError, Text: err.Error()})
	return err
}

// thread returns the conversation's thread, creating it. Caller holds mu.
func (s *Session) thread(id string) *model.Thread {
	th, ok := s.threads[id]
	if !ok {
		th = model.NewThread(id)
		s.threads[id] = th
	}
	return th
}

// archive hands settled messages to the archiver. Provisional entries are
// skipped.
func (s *Session) archive(id string, msgs ...model.Message) {
	s.toArchive(id, false, msgs)
}

// archiveHistory replaces the archived copy of a conversation with the
// history the server returned.
func (s *Session) archiveHistory(id string, msgs []model.Message) {
	s.toArchive(id, true, msgs)
}

func (s *Session) toArchive(id string, replace bool, msgs []model.Message) {
	if s.archiver == nil {
		return
	}
	settled := msgs[:0:0]
	for _, m := range msgs {
		if !m.IsProvisional() && m.ID != "" {
			settled = append(settled, m)
		}
	}
	if len(settled) == 0 && !replace {
		return
	}
	s.mu.Lock()
	conv := s.convs[id]
	s.mu.Unlock()
	if conv.ID == "" {
		conv.ID = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store := s.archiver.Store
	if replace {
		store = s.archiver.Replace
	}
	if err := store(ctx, conv, settled...); err != nil {
		s.logger.Warn("archive failed", "conversation", id, "err", err)
	}
}
