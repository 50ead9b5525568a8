// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/util"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server offers",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the server is up and ready",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(modelsCmd, healthCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	sess, err := newSession("models")
	if err != nil {
		return err
	}
	ctx, cancel := restContext(cmd)
	defer cancel()

	catalog, err := sess.API().ListModels(ctx)
	if err != nil {
		return err
	}
	if modelsJSON {
		return writeJSON(cmd.OutOrStdout(), catalog)
	}

	out := cmd.OutOrStdout()
	for _, provider := range catalog.Providers() {
		fmt.Fprintln(out, TitleStyle.Render(provider))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, m := range catalog[provider] {
			mark := " "
			if m.ID == cfg.Chat.Model && provider == cfg.Chat.Provider {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s %s\t%s\t%s\t%s\n", mark, m.ID, util.Truncate(m.Name, 32), m.ContextString(), m.CapabilitiesString())
		}
		tw.Flush()
	}
	fmt.Fprintf(out, "\n%s\n", DimStyle.Render(fmt.Sprintf("%d models", catalog.Total())))
	return nil
}

// runHealth does not need a token; the health endpoints are public.
func runHealth(cmd *cobra.Command, args []string) error {
	client := api.NewClient(api.Config{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.Server.RequestTimeout(),
	})
	ctx, cancel := restContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s%s\n", RenderLabel("Server"), ValueStyle.Render(client.BaseURL()))

	live, err := client.Live(ctx)
	if err != nil {
		fmt.Fprintf(out, "%s%s %v\n", RenderLabel("Live"), RenderStatus("fail"), err)
		return fmt.Errorf("server is not reachable")
	}
	fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Live"), RenderStatus(live.Status), live.Status)

	ready, err := client.Ready(ctx)
	if err != nil {
		fmt.Fprintf(out, "%s%s %v\n", RenderLabel("Ready"), RenderStatus("fail"), err)
		return fmt.Errorf("server is not ready")
	}
	fmt.Fprintf(out, "%s%s %s\n", RenderLabel("Ready"), RenderStatus(ready.Status), ready.Status)
	for name, v := range ready.Checks {
		fmt.Fprintf(out, "  %s%v\n", RenderLabel(name), v)
	}
	return nil
}
