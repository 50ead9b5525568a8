// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/export"
	"github.com/jeranaias/mariechat/internal/model"
)

var (
	exportFormat  string
	exportOutput  string
	exportArchive bool
	exportStdout  bool
	exportNoMeta  bool
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a conversation transcript",
	Long: `Export a conversation as JSON, YAML or Markdown.

The transcript is fetched from the server, or from the local archive with
--archive. Files are named after the title and the export time.

Examples:
  mariechat export 65f1c2 --format markdown
  mariechat export 65f1c2 --format yaml --output ~/transcripts
  mariechat export 65f1c2 --format json --stdout | jq .
  mariechat export 65f1c2 --archive`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	names := make([]string, 0, len(export.Formats))
	for _, f := range export.Formats {
		names = append(names, string(f))
	}
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.FormatMarkdown), "Output format: "+strings.Join(names, ", "))
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", ".", "Output directory")
	exportCmd.Flags().BoolVar(&exportArchive, "archive", false, "Read from the local archive")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "Write to stdout instead of a file")
	exportCmd.Flags().BoolVar(&exportNoMeta, "no-metadata", false, "Leave out the metadata block")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	id := args[0]

	ctx, cancel := restContext(cmd)
	defer cancel()

	var (
		conv model.Conversation
		msgs []model.Message
	)
	if exportArchive {
		arc, err := openArchive()
		if err != nil {
			return err
		}
		defer arc.Close()
		if conv, msgs, err = arc.Conversation(ctx, id); err != nil {
			return err
		}
	} else {
		sess, err := newSession("export")
		if err != nil {
			return err
		}
		client := sess.API()
		c, err := client.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		conv = *c
		if msgs, err = client.GetMessages(ctx, id, api.Page{}); err != nil {
			return err
		}
	}
	if len(msgs) == 0 {
		return fmt.Errorf("conversation %s has no messages", id)
	}

	opts := export.DefaultOptions()
	opts.OutputDir = exportOutput
	opts.IncludeMetadata = !exportNoMeta
	opts.IncludeFollowUps = cfg.UI.ShowFollowUps
	exporter, err := export.New(format, opts)
	if err != nil {
		return err
	}
	rec := export.FromConversation(conv, msgs)

	if exportStdout {
		data, err := exporter.Export(rec)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	path, err := export.ExportToFile(rec, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Exported"), path)
	return nil
}
