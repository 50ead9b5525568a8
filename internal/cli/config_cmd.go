// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mariechat/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the configuration",
	Long: `Show and edit the configuration file.

Settings are read from ~/.mariechat/config.toml (or MARIE_CONFIG_DIR),
then MARIE_* environment variables, then the global flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (token redacted)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfgFile)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with the defaults.

Values given with --server and --token are written too.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting, e.g. chat.model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.EqualFold(args[0], "server.token") {
			return errors.New("server.token is not printed; see the config file")
		}
		v, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the configuration file",
	Long: `Change one setting in the configuration file.

Keys:
  ` + strings.Join(config.AllKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
	}

	out := config.Default()
	if serverURL != "" {
		out.Server.URL = serverURL
	}
	if token != "" {
		out.Server.Token = token
	}
	if err := saveConfigFile(out, cfgFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Wrote"), cfgFile)
	return nil
}

// runConfigSet edits the file itself, so environment and flag overrides
// are not written back.
func runConfigSet(cmd *cobra.Command, args []string) error {
	file := config.Default()
	if _, err := os.Stat(cfgFile); err == nil {
		if strings.HasSuffix(cfgFile, ".json") {
			err = config.LoadJSON(file, cfgFile)
		} else {
			err = config.LoadTOML(file, cfgFile)
		}
		if err != nil {
			return err
		}
	}

	if err := file.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := file.Validate(); err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if err := saveConfigFile(file, cfgFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Set"), args[0])
	return nil
}

func saveConfigFile(c *config.Config, path string) error {
	if path == "" {
		return errors.New("no configuration path")
	}
	if strings.HasSuffix(path, ".json") {
		return config.SaveJSON(c, path)
	}
	return config.SaveTOML(c, path)
}
