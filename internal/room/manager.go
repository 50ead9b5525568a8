// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/mariechat/internal/protocol"
)

// DefaultSettleDelay is how long a join is given to take effect on the
// server before the room counts as ready.
const DefaultSettleDelay = 200 * time.Millisecond

// ErrEmptyID is returned for an empty conversation id.
var ErrEmptyID = errors.New("conversation id is empty")

// Emitter sends commands over the live connection.
type Emitter interface {
	Connected() bool
	Emit(event string, payload any) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// roomState tracks one room's readiness on the current connection.
type roomState struct {
	ready chan struct{} // closed once the settle delay elapsed
	armed bool
	timer *time.Timer
}

func newRoomState() *roomState {
	return &roomState{ready: make(chan struct{})}
}

func (r *roomState) isReady() bool {
	select {
	case <-r.ready:
		return true
	default:
		return false
	}
}

// Manager records the active conversation and tracks which rooms are joined
// on the current connection. It is safe for concurrent use.
type Manager struct {
	emitter Emitter
	settle  time.Duration
	logger  *log.Logger

	mu     sync.Mutex
	active string
	gen    uint64 // bumped on every disconnect
	rooms  map[string]*roomState
}

// New creates a room manager that emits through e.
func New(e Emitter, opts ...Option) *Manager {
	m := &Manager{
		emitter: e,
		settle:  DefaultSettleDelay,
		logger:  log.New(io.Discard),
		rooms:   make(map[string]*roomState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SettleDelay returns the configured settle delay.
func (m *Manager) SettleDelay() time.Duration {
	return m.settle
}

// Active returns the active conversation id.
func (m *Manager) Active() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.active != ""
}

// Join makes id the active conversation. The record is updated before any
// network activity. When connected, join_conversation is emitted and Join
// blocks until the settle delay elapsed or ctx is done. When disconnected
// it returns at once; the join goes out when the server next acknowledges
// the connection.
//
// Joining a new room does not leave the previous one.
func (m *Manager) Join(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	m.mu.Lock()
	m.active = id
	m.mu.Unlock()

	if !m.emitter.Connected() {
		m.logger.Debug("join deferred until connected", "conversation", id)
		return nil
	}

	if err := m.emitter.Emit(protocol.CmdJoinConversation, protocol.JoinConversation{ConversationID: id}); err != nil {
		return fmt.Errorf("join %s: %w", id, err)
	}
	m.MarkJoined(id)
	m.logger.Debug("joined", "conversation", id)

	return m.WaitReady(ctx, id)
}

// Leave detaches from id if it is the active conversation. Any other id is a
// no-op: nothing is emitted and nothing changes.
func (m *Manager) Leave(id string) error {
	m.mu.Lock()
	if id == "" || id != m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = ""
	if st, ok := m.rooms[id]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	if !m.emitter.Connected() {
		return nil
	}
	if err := m.emitter.Emit(protocol.CmdLeaveConversation, protocol.LeaveConversation{ConversationID: id}); err != nil {
		return fmt.Errorf("leave %s: %w", id, err)
	}
	m.logger.Debug("left", "conversation", id)
	return nil
}

// Ready reports whether a join for id went out on the current connection
// and its settle delay elapsed.
func (m *Manager) Ready(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[id]
	return ok && st.isReady()
}

// WaitReady blocks until Ready(id) holds or ctx is done. A disconnect
// during the wait extends it until the room is rejoined.
func (m *Manager) WaitReady(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	for {
		m.mu.Lock()
		st, ok := m.rooms[id]
		if !ok {
			st = newRoomState()
			m.rooms[id] = st
		}
		ready := st.ready
		m.mu.Unlock()

		select {
		case <-ready:
			// A disconnect may have swapped the state after the channel
			// closed; confirm against the live record.
			if m.Ready(id) {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for room %s: %w", id, ctx.Err())
		}
	}
}

// RejoinTarget returns the active conversation so the transport can rejoin
// it on a new connection.
func (m *Manager) RejoinTarget() (string, bool) {
	return m.Active()
}

// MarkJoined arms the settle timer for id on the current connection. A room
// already armed or ready is left alone.
func (m *Manager) MarkJoined(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.rooms[id]
	if !ok {
		st = newRoomState()
		m.rooms[id] = st
	}
	if st.armed || st.isReady() {
		return
	}
	st.armed = true

	gen := m.gen
	ready := st.ready
	if m.settle == 0 {
		close(ready)
		return
	}
	st.timer = time.AfterFunc(m.settle, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen {
			return
		}
		if cur, ok := m.rooms[id]; ok && cur.ready == ready && !cur.isReady() {
			close(ready)
		}
	})
}

// Disconnected invalidates every room's readiness. The active conversation
// record survives so it can be rejoined.
func (m *Manager) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	for id, st := range m.rooms {
		if st.timer != nil {
			st.timer.Stop()
		}
		if st.isReady() {
			m.rooms[id] = newRoomState()
			continue
		}
		// Pending waiters keep their channel; it closes after the rejoin.
		st.armed = false
		st.timer = nil
	}
}
