// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/model"
)

// commandTimeout bounds REST calls started from slash commands.
const commandTimeout = 30 * time.Second

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// Command describes one slash command for /help.
type Command struct {
	Name    string
	Args    string
	Summary string
}

// Commands lists the slash commands in help order.
var Commands = []Command{
	{"/new", "[title]", "start a conversation"},
	{"/load", "<id>", "open a conversation"},
	{"/list", "", "list recent conversations"},
	{"/rename", "<title>", "rename the current conversation"},
	{"/delete", "[id]", "delete a conversation (default: current)"},
	{"/stop", "", "stop the current generation"},
	{"/regen", "", "regenerate the last answer"},
	{"/image", "<prompt>", "generate an image"},
	{"/speak", "", "synthesize the last answer"},
	{"/export", "[json|yaml|markdown]", "export the conversation"},
	{"/reconnect", "", "drop the connection and dial again"},
	{"/clear", "", "clear notices and errors"},
	{"/help", "", "show commands"},
	{"/quit", "", "leave"},
}

// parseCommand splits "/name rest of line" into name and argument.
func parseCommand(line string) (name, arg string) {
	line = strings.TrimSpace(line)
	name, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

// runCommand executes a slash command. Session calls that touch the
// network run as tea.Cmds and report back with ActionResultMsg.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, arg := parseCommand(line)
	session := m.session
	current := session.Current()

	switch name {
	case "/new":
		return m, background("new", func(ctx context.Context) (string, error) {
			id, err := session.CreateConversation(ctx, arg)
			if err != nil {
				return "", err
			}
			if err := session.LoadConversation(ctx, id); err != nil {
				return "", err
			}
			return "started " + id, nil
		})

	case "/load":
		if arg == "" {
			m.addNotice("usage: /load <id>")
			return m, nil
		}
		return m, background("load", func(ctx context.Context) (string, error) {
			if err := session.LoadConversation(ctx, arg); err != nil {
				return "", err
			}
			return "", nil
		})

	case "/list":
		return m, m.listConversations(true)

	case "/rename":
		if current == "" || arg == "" {
			m.addNotice("usage: /rename <title> (with a conversation open)")
			return m, nil
		}
		return m, background("rename", func(ctx context.Context) (string, error) {
			if err := session.RenameConversation(ctx, current, arg); err != nil {
				return "", err
			}
			return "renamed to " + arg, nil
		})

	case "/delete":
		id := arg
		if id == "" {
			id = current
		}
		if id == "" {
			m.addNotice("usage: /delete <id>")
			return m, nil
		}
		return m, background("delete", func(ctx context.Context) (string, error) {
			if err := session.DeleteConversation(ctx, id); err != nil {
				return "", err
			}
			return "deleted " + id, nil
		})

	case "/stop":
		return m.stop()

	case "/regen":
		if m.inFlight() {
			m.addNotice("Marie is still answering; Esc stops the generation")
			return m, nil
		}
		m.sending = true
		ctx, cancel := context.WithCancel(context.Background())
		m.setCancelFunc(cancel)
		m.refresh()
		return m, func() tea.Msg {
			return SendResultMsg{ConversationID: current, Err: session.Regenerate(ctx, current)}
		}

	case "/image":
		if arg == "" {
			m.addNotice("usage: /image <prompt>")
			return m, nil
		}
		return m, background("image", func(ctx context.Context) (string, error) {
			id, err := session.GenerateImage(ctx, arg, current)
			if err != nil {
				return "", err
			}
			return "image queued in " + id, nil
		})

	case "/speak":
		last, ok := lastOfRole(m.snap.Messages, model.RoleAssistant)
		if !ok {
			m.addNotice("nothing to speak")
			return m, nil
		}
		return m, background("speak", func(context.Context) (string, error) {
			if err := session.Speak(last.Content, last.ID); err != nil {
				return "", err
			}
			return "speech requested", nil
		})

	case "/export":
		return m.exportConversation(arg)

	case "/reconnect":
		return m, background("reconnect", func(ctx context.Context) (string, error) {
			if err := session.Reconnect(ctx); err != nil {
				return "", err
			}
			return "reconnecting", nil
		})

	case "/clear":
		m.notices = nil
		session.ClearError()
		m.refresh()
		return m, nil

	case "/help":
		for _, c := range Commands {
			m.notices = append(m.notices, fmt.Sprintf("%-11s %-22s %s", c.Name, c.Args, c.Summary))
		}
		m.layout()
		return m, nil

	case "/quit", "/exit":
		return m.quit()
	}

	m.addNotice(fmt.Sprintf("unknown command %s (try /help)", name))
	return m, nil
}

// listConversations fetches the conversation list. show prints it.
func (m Model) listConversations(show bool) tea.Cmd {
	session := m.session
	limit := m.opts.ConversationLimit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		convs, err := session.ListConversations(ctx, api.Page{Limit: limit})
		return ConversationsMsg{Conversations: convs, Show: show, Err: err}
	}
}

// background runs fn with a timeout and reports the outcome.
func background(action string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		notice, err := fn(ctx)
		return ActionResultMsg{Action: action, Notice: notice, Err: err}
	}
}

func lastOfRole(msgs []model.Message, role model.Role) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}
