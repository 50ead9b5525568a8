// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/stream"
	"github.com/jeranaias/mariechat/internal/ui/components"
	"github.com/jeranaias/mariechat/internal/ui/styles"
)

// maxNotices bounds the local notice lines kept under the transcript.
const maxNotices = 6

// Options configures the chat view.
type Options struct {
	// Model and Provider label the status bar.
	Model    string
	Provider string

	ShowTimestamps bool
	ShowFollowUps  bool

	// ConversationLimit caps /list.
	ConversationLimit int

	// ExportDir receives /export files. Empty means the current directory.
	ExportDir string
	// SpeechDir receives audio from /speak. Empty disables saving.
	SpeechDir string

	Logger *log.Logger
}

// Model is the Bubble Tea model of the chat view. It renders session
// snapshots and turns keys and slash commands into session calls.
type Model struct {
	session Session
	opts    Options
	logger  *log.Logger

	theme     *styles.Theme
	keyMap    KeyMap
	help      help.Model
	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	header    *components.Header
	statusBar *components.StatusBar

	events      *EventBuffer
	unsubscribe func()
	cancelMgr   *cancelManager

	// snap is the last snapshot read from the session.
	snap          core.Snapshot
	sending       bool
	typing        bool
	notices       []string
	conversations []model.Conversation

	showHelp bool
	width    int
	height   int
	quitting bool
}

// New creates the chat view and subscribes it to session events. Call
// Close once the program has exited.
func New(session Session, theme *styles.Theme, opts Options) Model {
	if theme == nil {
		theme = styles.NewTheme()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Message Marie, or /help"
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}

	events := NewEventBuffer()
	unsubscribe := session.Subscribe(events.Write)

	header := components.NewHeader(theme)
	header.SetModel(opts.Model)
	statusBar := components.NewStatusBar(theme)
	statusBar.SetModel(opts.Model, opts.Provider)

	m := Model{
		session:     session,
		opts:        opts,
		logger:      logger,
		theme:       theme,
		keyMap:      DefaultKeyMap(),
		help:        help.New(),
		viewport:    vp,
		input:       ti,
		spinner:     sp,
		header:      header,
		statusBar:   statusBar,
		events:      events,
		unsubscribe: unsubscribe,
		cancelMgr:   newCancelManager(),
	}
	m.refresh()
	return m
}

// Close unsubscribes from the session and abandons a pending send.
func (m Model) Close() {
	m.cancelMgr.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init starts the frame loop and fetches the conversation list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		tickCmd(),
		m.listConversations(false),
	)
}

// Snapshot returns the state the view last rendered.
func (m Model) Snapshot() core.Snapshot {
	return m.snap
}

// Notices returns the local notice lines.
func (m Model) Notices() []string {
	return append([]string(nil), m.notices...)
}

// Sending reports whether a send is waiting on its room.
func (m Model) Sending() bool {
	return m.sending
}

// =============================================================================
// STATE HELPERS
// =============================================================================

// refresh re-reads the snapshot and propagates it to the components.
func (m *Model) refresh() {
	m.snap = m.session.Snapshot()

	title := ""
	if m.snap.ConversationID != "" {
		title = m.snap.Conversation.DisplayTitle()
	}
	m.header.SetConversation(title)
	m.statusBar.SetConnection(m.snap.Status)
	m.statusBar.SetConversation(title, m.snap.ConversationID != "" && m.session.RoomReady(m.snap.ConversationID))
	m.statusBar.SetActivity(m.activity())

	if name := m.snap.Conversation.Model; name != "" {
		m.header.SetModel(name)
		m.statusBar.SetModel(name, m.snap.Conversation.Provider)
	}
	m.updateViewport()
}

// activity derives the status bar activity from the snapshot.
func (m *Model) activity() components.Activity {
	st := m.snap.Stream
	switch {
	case st.Phase == stream.Streaming:
		return components.ActivityStreaming
	case st.Awaiting || m.sending:
		return components.ActivityWaiting
	case st.Stopped:
		return components.ActivityStopped
	}
	return components.ActivityIdle
}

// inFlight reports whether a send or a generation is under way.
func (m *Model) inFlight() bool {
	return m.sending || m.snap.Stream.InFlight()
}

func (m *Model) addNotice(text string) {
	m.notices = append(m.notices, text)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
	m.layout()
}

// updateViewport re-renders the transcript, following the tail when the
// view was already at the bottom.
func (m *Model) updateViewport() {
	atBottom := m.viewport.AtBottom()
	m.layout()
	m.viewport.SetContent(m.renderMessages())
	if atBottom || m.inFlight() {
		m.viewport.GotoBottom()
	}
}
