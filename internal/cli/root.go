// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/config"
	"github.com/jeranaias/mariechat/internal/logging"
)

var (
	configPath  string
	serverURL   string
	token       string
	verbose     bool
	version     = "dev"
	commit      = "unknown"
	date        = "unknown"
	errNoConfig = errors.New("configuration not loaded")
)

// skipSetup marks commands that run without configuration.
const skipSetup = "skip-setup"

// cfg and cfgFile are set by the root pre-run for every subcommand.
var (
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "mariechat",
	Short: "Terminal client for the Marie chat server",
	Long: `A terminal client for Marie, the Spanish-speaking AI assistant.

It connects to a Marie chat server, joins a conversation and streams the
assistant's answers as they are generated.

Quick Start:
  mariechat chat                          # interactive chat
  mariechat conversations list            # list your conversations
  mariechat export <id> --format markdown # save a transcript

Credentials come from the config file, MARIE_TOKEN or --token.`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.mariechat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL, overrides server.url")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "JWT, overrides server.token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// setup loads the configuration, applies flag overrides and configures
// logging. The chat TUI owns the terminal, so it logs to the configured
// file or nowhere.
func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipSetup] != "" {
		return nil
	}
	loaded, path, err := loadConfig()
	if err != nil {
		return err
	}
	if serverURL != "" {
		loaded.Server.URL = serverURL
	}
	if token != "" {
		loaded.Server.Token = token
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg, cfgFile = loaded, path
	config.SetGlobal(cfg)

	opts := logging.Options{
		Level:   cfg.Log.Level,
		Verbose: verbose,
		File:    cfg.Log.File,
		Output:  cmd.ErrOrStderr(),
	}
	if usesTUI(cmd) && opts.File == "" {
		opts.Output = io.Discard
	}
	if _, err := logging.Setup(opts); err != nil {
		return err
	}
	return nil
}

// loadConfig returns the configuration and the file it came from. The path
// is the default TOML location when no file exists yet.
func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		loaded, err := config.LoadFromPath(configPath)
		return loaded, configPath, err
	}

	path, err := config.ConfigPathTOML()
	if err != nil {
		return nil, "", err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if jsonPath, err := config.ConfigPathJSON(); err == nil {
			if _, err := os.Stat(jsonPath); err == nil {
				path = jsonPath
			}
		}
	}

	loaded, err := config.Load()
	if loaded == nil {
		return nil, "", err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v (using defaults)\n", WarningStyle.Render("Warning:"), err)
	}
	return loaded, path, nil
}

// sessionConfig maps the file configuration onto the session settings.
func sessionConfig(c *config.Config) core.Config {
	return core.Config{
		ServerURL:         c.Server.URL,
		SocketPath:        c.Server.SocketPath,
		Token:             c.Server.Token,
		Model:             c.Chat.Model,
		Provider:          c.Chat.Provider,
		DisableStreaming:  !c.Chat.Stream,
		JoinSettle:        c.Chat.JoinSettle(),
		TypingInterval:    c.Chat.TypingInterval(),
		Voice:             c.Chat.Voice,
		Language:          c.Chat.Language,
		ReconnectAttempts: c.Server.ReconnectAttempts,
		ReconnectDelay:    c.Server.ReconnectDelay(),
		HandshakeTimeout:  c.Server.HandshakeTimeout(),
		RequestTimeout:    c.Server.RequestTimeout(),
	}
}

// newSession builds a session for REST-only commands. The socket stays
// closed unless the caller connects it.
func newSession(component string, opts ...core.Option) (*core.Session, error) {
	if cfg == nil {
		return nil, errNoConfig
	}
	if strings.TrimSpace(cfg.Server.Token) == "" {
		return nil, fmt.Errorf("%w: set server.token, MARIE_TOKEN or --token", core.ErrNotAuthenticated)
	}
	opts = append([]core.Option{core.WithLogger(logging.For(component))}, opts...)
	return core.New(sessionConfig(cfg), opts...), nil
}
