// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case TickMsg:
		return m.handleTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SendResultMsg:
		return m.handleSendResult(msg)

	case ActionResultMsg:
		switch {
		case msg.Err != nil:
			m.logger.Debug("action failed", "action", msg.Action, "err", msg.Err)
			m.addNotice(fmt.Sprintf("%s failed: %v", msg.Action, msg.Err))
		case msg.Notice != "":
			m.addNotice(msg.Notice)
		}
		m.refresh()
		return m, nil

	case ConversationsMsg:
		return m.handleConversations(msg)

	case ExportResultMsg:
		if msg.Err != nil {
			m.addNotice("export failed: " + msg.Err.Error())
		} else {
			m.addNotice("exported to " + msg.Path)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	m.theme.SetSize(m.width, m.height)
	m.header.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.help.Width = m.width

	const promptLen = 2
	m.input.Width = max(m.width-4-promptLen, 10)
	m.viewport.Width = max(m.width, 1)

	m.updateViewport()
	return m, nil
}

// handleTick drains the event buffer. Several events between two frames
// cost one snapshot.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	batch, ok := m.events.Flush()
	if !ok {
		return m, tickCmd()
	}

	cmds := []tea.Cmd{tickCmd()}
	if batch.Refresh {
		m.refresh()
	}
	for _, ev := range batch.Events {
		switch ev.Kind {
		case core.EventTranscription:
			m.input.SetValue(ev.Text)
			m.input.CursorEnd()
			m.addNotice("transcription ready")
		case core.EventSpeech:
			if cmd := m.saveSpeech(ev); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleSendResult(msg SendResultMsg) (tea.Model, tea.Cmd) {
	m.sending = false
	m.cancelMgr.cancel()

	switch {
	case errors.Is(msg.Err, core.ErrSendCanceled):
		m.addNotice("send canceled")
	case msg.Err != nil:
		m.logger.Debug("send failed", "conversation", msg.ConversationID, "err", msg.Err)
	}
	m.refresh()
	return m, nil
}

func (m Model) handleConversations(msg ConversationsMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		if msg.Show {
			m.addNotice("list failed: " + msg.Err.Error())
		}
		return m, nil
	}
	m.conversations = msg.Conversations
	if !msg.Show {
		return m, nil
	}
	if len(msg.Conversations) == 0 {
		m.addNotice("no conversations")
		return m, nil
	}
	limit := min(len(msg.Conversations), maxNotices-1)
	m.addNotice(fmt.Sprintf("%d conversations (/load <id>):", len(msg.Conversations)))
	for _, c := range msg.Conversations[:limit] {
		m.addNotice(fmt.Sprintf("  %s  %s", util.Truncate(c.ID, 12), util.Truncate(c.DisplayTitle(), 40)))
	}
	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m.quit()

	case key.Matches(msg, m.keyMap.Cancel):
		if m.inFlight() {
			return m.stop()
		}
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.showHelp {
			m.showHelp = false
			m.layout()
			return m, nil
		}
		m.input.Reset()
		return m, m.typingCmd(false)

	case key.Matches(msg, m.keyMap.Help):
		m.showHelp = !m.showHelp
		m.layout()
		return m, nil

	case key.Matches(msg, m.keyMap.Clear):
		m.notices = nil
		m.session.ClearError()
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keyMap.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keyMap.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keyMap.End):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		return m.submit()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	after := m.input.Value()
	if before == after {
		return m, cmd
	}
	return m, tea.Batch(cmd, m.typingCmd(strings.TrimSpace(after) != ""))
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.cancelMgr.cancel()
	return m, tea.Batch(m.typingCmd(false), tea.Quit)
}

// stop abandons a pending send and stops the generation. The session
// clears its stream state before the stop is emitted, so the view can
// refresh right away.
func (m Model) stop() (tea.Model, tea.Cmd) {
	m.cancelSend()
	id := m.session.Current()
	if err := m.session.StopGeneration(id); err != nil {
		m.addNotice("stop failed: " + err.Error())
	}
	m.refresh()
	return m, nil
}

// submit sends the input line or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}
	if m.inFlight() {
		m.addNotice("Marie is still answering; Esc stops the generation")
		return m, nil
	}

	m.input.Reset()
	m.sending = true
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancelFunc(cancel)

	session := m.session
	id := session.Current()
	send := func() tea.Msg {
		convID, err := session.SendMessage(ctx, text, id)
		return SendResultMsg{ConversationID: convID, Err: err}
	}
	m.refresh()
	return m, tea.Batch(m.typingCmd(false), send)
}

// typingCmd reports the local typing state when it changed. The session
// rate-limits repeats.
func (m *Model) typingCmd(typing bool) tea.Cmd {
	id := m.session.Current()
	if id == "" {
		m.typing = false
		return nil
	}
	if !typing && !m.typing {
		return nil
	}
	m.typing = typing
	session := m.session
	return func() tea.Msg {
		_ = session.SetTyping(id, typing)
		return nil
	}
}

// saveSpeech writes synthesized audio next to the other speech files.
func (m *Model) saveSpeech(ev core.Event) tea.Cmd {
	if m.opts.SpeechDir == "" {
		m.addNotice(fmt.Sprintf("received %d bytes of speech", len(ev.Audio)))
		return nil
	}
	name := filepath.Base(ev.MessageID)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "speech"
	}
	path := filepath.Join(m.opts.SpeechDir, name+".mp3")
	audio := ev.Audio
	return func() tea.Msg {
		if err := util.WriteFileAtomicDir(path, audio, 0o600, 0o700); err != nil {
			return ActionResultMsg{Action: "speak", Err: err}
		}
		return ActionResultMsg{Action: "speak", Notice: "speech saved to " + path}
	}
}
