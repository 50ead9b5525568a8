// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mariechat/internal/archive"
	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/config"
	"github.com/jeranaias/mariechat/internal/logging"
	"github.com/jeranaias/mariechat/internal/transport"
	chatui "github.com/jeranaias/mariechat/internal/ui/chat"
	"github.com/jeranaias/mariechat/internal/ui/styles"
)

var (
	chatPlain        bool
	chatConversation string
	chatExportDir    string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with Marie",
	Long: `Open an interactive chat.

The full-screen interface is used when stdin and stdout are terminals.
Otherwise, or with --plain, a line-oriented prompt is used that also
accepts piped input.

Examples:
  mariechat chat
  mariechat chat --conversation 65f1c2
  echo "¿Qué tal?" | mariechat chat --plain`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{fullScreen: "true"},
	RunE:        runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Use the line-oriented prompt")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "Open this conversation on start")
	chatCmd.Flags().StringVar(&chatExportDir, "export-dir", "", "Directory for /export (default: current directory)")

	rootCmd.AddCommand(chatCmd)
}

// fullScreen marks commands that may run the full-screen interface.
const fullScreen = "full-screen"

// usesTUI reports whether cmd will take over the terminal.
func usesTUI(cmd *cobra.Command) bool {
	return cmd.Annotations[fullScreen] != "" && !chatPlain && IsTTY() && IsStdoutTTY()
}

func runChat(cmd *cobra.Command, args []string) error {
	log := logging.For("cli")

	var opts []core.Option
	if cfg.Archive.Enabled {
		arc, err := openArchive()
		if err != nil {
			return err
		}
		defer arc.Close()
		opts = append(opts, core.WithArchiver(arc))
	}

	sess, err := newSession("chat", opts...)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watchConfig(ctx)

	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	log.Debug("connecting", "server", cfg.Server.URL)

	if chatConversation != "" {
		if err := waitConnected(ctx, sess, cfg.Server.HandshakeTimeout()); err != nil {
			return err
		}
		if err := sess.LoadConversation(ctx, chatConversation); err != nil {
			return err
		}
	}

	if usesTUI(cmd) {
		return runTUI(sess)
	}
	return runREPL(ctx, sess, cmd.OutOrStdout())
}

func runTUI(sess *core.Session) error {
	m := chatui.New(sess, styles.NewTheme(), chatui.Options{
		Model:             cfg.Chat.Model,
		Provider:          cfg.Chat.Provider,
		ShowTimestamps:    cfg.UI.ShowTimestamps,
		ShowFollowUps:     cfg.UI.ShowFollowUps,
		ConversationLimit: cfg.UI.ConversationLimit,
		ExportDir:         chatExportDir,
		SpeechDir:         speechDir(),
		Logger:            logging.For("ui"),
	})
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// openArchive opens the configured transcript archive.
func openArchive() (*archive.Archive, error) {
	path, err := cfg.ArchivePath()
	if err != nil {
		return nil, err
	}
	arc, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return arc, nil
}

// watchConfig applies log level changes from the config file while the
// chat runs. Other settings take effect on the next start.
func watchConfig(ctx context.Context) {
	if cfgFile == "" {
		return
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return
	}
	log := logging.For("config")
	w, err := config.NewWatcher(cfgFile, func(c *config.Config) {
		if err := logging.SetLevel(c.Log.Level); err != nil {
			log.Warn("ignoring log level", "err", err)
			return
		}
		log.Info("config reloaded", "level", c.Log.Level)
	})
	if err != nil {
		log.Warn("config watch disabled", "err", err)
		return
	}
	w.OnError = func(err error) { log.Warn("config reload failed", "err", err) }
	go w.Run(ctx)
}

// waitConnected blocks until the socket is acknowledged, the connection
// gives up, or the timeout passes.
func waitConnected(ctx context.Context, sess *core.Session, timeout time.Duration) error {
	if sess.Status() == transport.StatusConnected {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	changed := make(chan struct{}, 1)
	unsubscribe := sess.Subscribe(func(ev core.Event) {
		if ev.Kind == core.EventStatus || ev.Kind == core.EventError {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		switch sess.Status() {
		case transport.StatusConnected:
			return nil
		case transport.StatusDisconnected:
			if msg := sess.Error(); msg != "" {
				return errors.New(msg)
			}
		}
		select {
		case <-changed:
		case <-timer.C:
			return fmt.Errorf("%w: no answer from %s after %s", core.ErrNotConnected, cfg.Server.URL, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// speechDir is where synthesized audio is saved.
func speechDir() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "speech")
}
