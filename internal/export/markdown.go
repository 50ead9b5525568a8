// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontmatter is the metadata block at the top of a Markdown export.
type frontmatter struct {
	Title     string `yaml:"title"`
	ID        string `yaml:"id"`
	Model     string `yaml:"model,omitempty"`
	Provider  string `yaml:"provider,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Messages  int    `yaml:"messages"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a record to Markdown.
func (e *MarkdownExporter) Export(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrEmptyTranscript
	}
	if len(rec.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:     rec.Title,
			ID:        rec.ID,
			Model:     rec.Model,
			Provider:  rec.Provider,
			Messages:  len(rec.Messages),
			Exported:  rec.ExportedAt.Format(time.RFC3339),
			Generator: "mariechat",
		}
		if !rec.CreatedAt.IsZero() {
			fm.Date = rec.CreatedAt.Format(time.RFC3339)
		}
		// yaml.v3 quotes titles containing newlines or colons.
		data, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(data)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(singleLine(rec.Title)))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		if rec.Model != "" {
			fmt.Fprintf(&sb, "- **Model**: %s\n", modelLabel(rec.Model, rec.Provider))
		}
		if !rec.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(rec.CreatedAt))
		}
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(rec.Messages))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")

	for i, msg := range rec.Messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if msg.Partial {
			sb.WriteString("<sub>(stopped)</sub>\n\n")
		}
		if e.options.IncludeFollowUps && len(msg.FollowUps) > 0 {
			sb.WriteString("**Follow-ups:**\n\n")
			for _, f := range msg.FollowUps {
				fmt.Fprintf(&sb, "- %s\n", singleLine(f))
			}
			sb.WriteString("\n")
		}

		if i < len(rec.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	if e.options.IncludeMetadata {
		sb.WriteString("\n---\n\n")
		fmt.Fprintf(&sb, "*Exported from Marie Chat on %s*\n",
			rec.ExportedAt.Format("January 2, 2006 at 3:04 PM"))
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func roleLabel(role string) string {
	if role == "" {
		return "Unknown"
	}
	return model.Role(role).DisplayName()
}

func modelLabel(name, provider string) string {
	if provider == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, provider)
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return r.Replace(s)
}
