// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/mariechat/internal/api"
	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/config"
	"github.com/jeranaias/mariechat/internal/export"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/transport"
	chatui "github.com/jeranaias/mariechat/internal/ui/chat"
	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// LINE INPUT
// =============================================================================

// lineInput wraps liner with a persistent history file.
type lineInput struct {
	line        *liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)

	in := &lineInput{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		in.historyFile = filepath.Join(dir, "chat_history")
		if f, err := os.Open(in.historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	line.SetCompleter(completeCommand)
	return in
}

// Read prompts for one line and records it in the history.
func (in *lineInput) Read(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (in *lineInput) Close() {
	if in.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(in.historyFile), 0o700); err == nil {
			if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
				in.line.WriteHistory(f)
				f.Close()
			}
		}
	}
	in.line.Close()
}

func completeCommand(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, c := range chatui.Commands {
		if strings.HasPrefix(c.Name, line) {
			out = append(out, c.Name+" ")
		}
	}
	return out
}

// =============================================================================
// REPL
// =============================================================================

// repl is the line-oriented chat. Streamed content is printed from the
// session observer while the prompt waits for the generation to finish.
type repl struct {
	sess *core.Session
	out  io.Writer

	mu      sync.Mutex
	waiting chan struct{}   // closed when the awaited generation ends
	known   map[string]bool // messages present before the send
	started bool
	text    string // answer content printed so far
}

func newREPL(sess *core.Session, out io.Writer) *repl {
	return &repl{sess: sess, out: out}
}

func runREPL(ctx context.Context, sess *core.Session, out io.Writer) error {
	r := newREPL(sess, out)
	unsubscribe := sess.Subscribe(r.onEvent)
	defer unsubscribe()

	if err := waitConnected(ctx, sess, cfg.Server.HandshakeTimeout()); err != nil {
		return err
	}

	in := newLineInput()
	defer in.Close()

	// Ctrl+C outside the prompt stops the running generation.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if r.busy() {
				_ = sess.StopGeneration("")
			}
		}
	}()

	fmt.Fprintln(out, TitleStyle.Render("Marie Chat"))
	fmt.Fprintln(out, DimStyle.Render("Type a message, /help for commands, Ctrl+D to leave."))
	if id := sess.Current(); id != "" {
		r.printHistory(sess.Messages(id))
	}

	for {
		input, err := in.Read(UserStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				fmt.Fprintf(out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, func(ctx context.Context) error {
			_, err := sess.SendMessage(ctx, input, sess.Current())
			return err
		}); err != nil {
			fmt.Fprintf(out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// send runs a generation request and blocks until its stream ends.
func (r *repl) send(ctx context.Context, fn func(context.Context) error) error {
	known := make(map[string]bool)
	for _, m := range r.sess.Messages(r.sess.Current()) {
		known[m.ID] = true
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.waiting, r.known = done, known
	r.started, r.text = false, ""
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.finish()
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		_ = r.sess.StopGeneration("")
		r.finish()
		return ctx.Err()
	}
	return nil
}

func (r *repl) busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting != nil
}

// finish releases a waiting send. Safe to call more than once.
func (r *repl) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting != nil {
		close(r.waiting)
		r.waiting = nil
	}
}

func (r *repl) onEvent(ev core.Event) {
	switch ev.Kind {
	case core.EventMessages:
		if ev.ConversationID == r.sess.Current() {
			r.render(r.sess.SnapshotOf(ev.ConversationID))
		}
	case core.EventError:
		if msg := r.sess.Error(); msg != "" {
			fmt.Fprintf(r.out, "\n%s %s\n", ErrorStyle.Render("[Error]"), msg)
		}
	case core.EventStatus:
		if ev.Status != transport.StatusConnected {
			fmt.Fprintf(r.out, "\n%s %s\n", WarningStyle.Render("[Connection]"), ev.Status)
		}
	case core.EventSpeech:
		r.saveSpeech(ev)
	case core.EventImage:
		switch {
		case ev.Image.Failed():
			fmt.Fprintf(r.out, "%s %s\n", ErrorStyle.Render("[Image]"), ev.Image.Error)
		case ev.Image.Done:
			fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("[Image]"), ev.Image.ImageURL)
		}
	}
}

// render prints whatever part of the new assistant message has not been
// printed yet, and ends the wait once the stream is idle.
func (r *repl) render(snap core.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return
	}

	var answer *model.Message
	if n := len(snap.Messages); n > 0 {
		last := snap.Messages[n-1]
		if last.Role == model.RoleAssistant && !r.known[last.ID] {
			answer = &last
			if !r.started {
				fmt.Fprintf(r.out, "%s ", AssistantStyle.Render("marie>"))
				r.started = true
			}
			r.printDelta(last)
		}
	}

	if snap.Stream.InFlight() {
		return
	}
	if r.started {
		fmt.Fprintln(r.out)
	}
	if answer != nil {
		if _, stopped := answer.Status.(model.Finalized); stopped {
			fmt.Fprintln(r.out, WarningStyle.Render("(stopped)"))
		}
		if cfg.UI.ShowFollowUps {
			for _, f := range answer.FollowUps {
				fmt.Fprintln(r.out, DimStyle.Render("> "+f))
			}
		}
	}
	close(r.waiting)
	r.waiting = nil
}

// printDelta prints the unprinted tail of msg. The confirmed record that
// replaces the streamed one usually repeats its content; anything that
// does not extend what was printed is left alone.
func (r *repl) printDelta(msg model.Message) {
	if !strings.HasPrefix(msg.Content, r.text) {
		return
	}
	if tail := msg.Content[len(r.text):]; tail != "" {
		io.WriteString(r.out, tail)
		r.text = msg.Content
	}
}

func (r *repl) printHistory(msgs []model.Message) {
	for _, m := range msgs {
		label := UserStyle.Render("you>")
		if m.Role == model.RoleAssistant {
			label = AssistantStyle.Render("marie>")
		}
		fmt.Fprintf(r.out, "%s %s\n", label, m.Content)
	}
}

func (r *repl) saveSpeech(ev core.Event) {
	dir := speechDir()
	if dir == "" {
		fmt.Fprintf(r.out, "%s received %d bytes\n", SuccessStyle.Render("[Speech]"), len(ev.Audio))
		return
	}
	name := filepath.Base(ev.MessageID)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "speech"
	}
	path := filepath.Join(dir, name+".mp3")
	if err := util.WriteFileAtomicDir(path, ev.Audio, 0o600, 0o700); err != nil {
		fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Speech]"), err)
		return
	}
	fmt.Fprintf(r.out, "%s saved %s\n", SuccessStyle.Render("[Speech]"), path)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

const replCommandTimeout = 30 * time.Second

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	name, arg = strings.ToLower(name), strings.TrimSpace(arg)
	current := r.sess.Current()

	cctx, cancel := context.WithTimeout(ctx, replCommandTimeout)
	defer cancel()

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		for _, c := range chatui.Commands {
			fmt.Fprintf(r.out, "  %-10s %-22s %s\n", c.Name, c.Args, DimStyle.Render(c.Summary))
		}

	case "/new":
		id, err := r.sess.CreateConversation(cctx, arg)
		if err != nil {
			return false, err
		}
		if err := r.sess.LoadConversation(cctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("[New]"), id)

	case "/load":
		if arg == "" {
			return false, errors.New("usage: /load <id>")
		}
		if err := r.sess.LoadConversation(cctx, arg); err != nil {
			return false, err
		}
		r.printHistory(r.sess.Messages(arg))

	case "/list":
		convs, err := r.sess.ListConversations(cctx, api.Page{Limit: cfg.UI.ConversationLimit})
		if err != nil {
			return false, err
		}
		printConversations(r.out, convs, current)

	case "/rename":
		if arg == "" || current == "" {
			return false, errors.New("usage: /rename <title> (with a conversation open)")
		}
		if err := r.sess.RenameConversation(cctx, current, arg); err != nil {
			return false, err
		}

	case "/delete":
		id := arg
		if id == "" {
			id = current
		}
		if id == "" {
			return false, errors.New("usage: /delete [id]")
		}
		if err := r.sess.DeleteConversation(cctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("[Deleted]"), id)

	case "/stop":
		return false, r.sess.StopGeneration(current)

	case "/regen":
		return false, r.send(ctx, func(ctx context.Context) error {
			return r.sess.Regenerate(ctx, current)
		})

	case "/image":
		if arg == "" {
			return false, errors.New("usage: /image <prompt>")
		}
		id, err := r.sess.GenerateImage(cctx, arg, current)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s queued in %s\n", DimStyle.Render("[Image]"), id)

	case "/speak":
		last, ok := lastAssistant(r.sess.Messages(current))
		if !ok {
			return false, errors.New("nothing to speak")
		}
		return false, r.sess.Speak(last.Content, last.ID)

	case "/export":
		path, err := exportSnapshot(r.sess.Snapshot(), arg, chatExportDir)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("[Exported]"), path)

	case "/reconnect":
		if err := r.sess.Reconnect(cctx); err != nil {
			return false, err
		}
		if err := waitConnected(cctx, r.sess, cfg.Server.HandshakeTimeout()); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("[Connected]"))

	case "/clear":
		r.sess.ClearError()

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func lastAssistant(msgs []model.Message) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && !msgs[i].IsProvisional() {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

// exportSnapshot writes the open conversation in the named format.
func exportSnapshot(snap core.Snapshot, formatName, dir string) (string, error) {
	if formatName == "" {
		formatName = string(export.FormatMarkdown)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return "", err
	}
	if snap.ConversationID == "" || len(snap.Messages) == 0 {
		return "", errors.New("nothing to export")
	}
	opts := export.DefaultOptions()
	opts.IncludeFollowUps = cfg.UI.ShowFollowUps
	if dir != "" {
		opts.OutputDir = dir
	}
	exporter, err := export.New(format, opts)
	if err != nil {
		return "", err
	}
	return export.ExportToFile(export.FromConversation(snap.Conversation, snap.Messages), exporter, opts)
}
