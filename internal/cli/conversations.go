// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/util"
)

var (
	listLimit   int
	listOffset  int
	listJSON    bool
	listArchive bool
	searchScope string
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv", "c"},
	Short:   "Manage conversations on the server",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations, most recent first",
	Long: `List conversations from the server.

With --archive the local transcript archive is listed instead; it works
without a connection.

Examples:
  mariechat conversations list
  mariechat conversations list --limit 10 --json
  mariechat conversations list --archive`,
	Args: cobra.NoArgs,
	RunE: runConversationsList,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConversationsDelete,
}

var conversationsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConversationsRename,
}

var conversationsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search conversation titles and messages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runConversationsSearch,
}

func init() {
	conversationsListCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Maximum conversations (default ui.conversation_limit)")
	conversationsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip this many conversations")
	conversationsListCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON")
	conversationsListCmd.Flags().BoolVar(&listArchive, "archive", false, "List the local archive")
	conversationsSearchCmd.Flags().StringVar(&searchScope, "scope", string(api.ScopeConversations), "Search scope: conversations or messages")
	conversationsSearchCmd.Flags().BoolVar(&listJSON, "json", false, "Print JSON")

	conversationsCmd.AddCommand(conversationsListCmd, conversationsDeleteCmd, conversationsRenameCmd, conversationsSearchCmd)
	rootCmd.AddCommand(conversationsCmd)
}

// restContext bounds one REST command.
func restContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := cfg.Server.RequestTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func runConversationsList(cmd *cobra.Command, args []string) error {
	limit := listLimit
	if limit <= 0 {
		limit = cfg.UI.ConversationLimit
	}
	ctx, cancel := restContext(cmd)
	defer cancel()

	var convs []model.Conversation
	if listArchive {
		arc, err := openArchive()
		if err != nil {
			return err
		}
		defer arc.Close()
		summaries, err := arc.List(ctx, limit)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			convs = append(convs, s.Conversation)
		}
	} else {
		sess, err := newSession("conversations")
		if err != nil {
			return err
		}
		convs, err = sess.ListConversations(ctx, api.Page{Limit: limit, Offset: listOffset})
		if err != nil {
			return err
		}
	}

	if listJSON {
		return writeJSON(cmd.OutOrStdout(), convs)
	}
	if len(convs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("No conversations."))
		return nil
	}
	printConversations(cmd.OutOrStdout(), convs, "")
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	sess, err := newSession("conversations")
	if err != nil {
		return err
	}
	ctx, cancel := restContext(cmd)
	defer cancel()

	for _, id := range args {
		if err := sess.DeleteConversation(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Deleted"), id)
	}
	return nil
}

func runConversationsRename(cmd *cobra.Command, args []string) error {
	id, title := args[0], strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return fmt.Errorf("title is empty")
	}
	sess, err := newSession("conversations")
	if err != nil {
		return err
	}
	ctx, cancel := restContext(cmd)
	defer cancel()

	if err := sess.RenameConversation(ctx, id, title); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %q\n", SuccessStyle.Render("Renamed"), id, title)
	return nil
}

func runConversationsSearch(cmd *cobra.Command, args []string) error {
	scope := api.SearchScope(strings.ToLower(searchScope))
	sess, err := newSession("conversations")
	if err != nil {
		return err
	}
	ctx, cancel := restContext(cmd)
	defer cancel()

	results, err := sess.API().SearchConversations(ctx, strings.Join(args, " "), scope, api.Page{Limit: cfg.UI.ConversationLimit})
	if err != nil {
		return err
	}
	if listJSON {
		return writeJSON(cmd.OutOrStdout(), results)
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("No matches."))
		return nil
	}
	printSearchResults(cmd.OutOrStdout(), results)
	return nil
}

func printSearchResults(w io.Writer, results []api.SearchResult) {
	width := max(TerminalWidth()-50, 20)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tMATCH\tUPDATED")
	for _, r := range results {
		conv, match := r.ConversationID, r.Title
		if conv == "" {
			conv = r.ID
		}
		if r.Content != "" {
			match = util.FirstLine(r.Content)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", conv, util.Truncate(match, width), formatTime(r.UpdatedAt))
	}
	tw.Flush()
}

// printConversations renders a table; current is marked with '*'.
func printConversations(w io.Writer, convs []model.Conversation, current string) {
	titleWidth := max(TerminalWidth()-50, 20)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range convs {
		mark := " "
		if c.ID == current {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%d\t%s\n", mark, c.ID, util.Truncate(c.DisplayTitle(), titleWidth), c.MessageCount, formatTime(c.UpdatedAt))
	}
	tw.Flush()
}

func formatTime(t model.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
