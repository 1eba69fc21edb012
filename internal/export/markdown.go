// Package export renders saved conversations for reading outside the tool.
package export

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
)

const dateLayout = "2006-01-02 15:04:05"

// FileName returns chat_{id}_{YYYYMMDD_HHMMSS}.md for rec.
func FileName(rec *conversation.Record) string {
	id := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, rec.ID)
	if id == "" {
		return fmt.Sprintf("chat_%s.md", rec.CreatedAt.Format("20060102_150405"))
	}
	return fmt.Sprintf("chat_%s_%s.md", id, rec.CreatedAt.Format("20060102_150405"))
}

// Markdown renders rec as a chat history document.
func Markdown(rec *conversation.Record) string {
	var b strings.Builder
	_ = WriteMarkdown(&b, rec)
	return b.String()
}

// WriteMarkdown writes the Markdown rendering of rec to w.
func WriteMarkdown(w io.Writer, rec *conversation.Record) error {
	var b strings.Builder
	b.WriteString("# Chat History\n\n")
	if rec.ConversationID != "" {
		fmt.Fprintf(&b, "Conversation ID: %s\n", rec.ConversationID)
	}
	if rec.ProjectName != "" {
		fmt.Fprintf(&b, "Project: %s\n", rec.ProjectName)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", rec.CreatedAt.Format(dateLayout))
	}
	b.WriteString("\n")

	if rec.Title != "" {
		fmt.Fprintf(&b, "## %s\n\n", rec.Title)
	}
	if rec.Summary != "" {
		fmt.Fprintf(&b, "%s\n\n", rec.Summary)
	}
	if len(rec.FilesMentioned) > 0 {
		fmt.Fprintf(&b, "Files: %s\n\n", strings.Join(rec.FilesMentioned, ", "))
	}

	for _, m := range rec.Messages {
		writeMessage(&b, m)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMessage(b *strings.Builder, m conversation.Message) {
	fmt.Fprintf(b, "\n### %s", capitalize(string(m.Role)))
	if m.Timestamp != "" {
		fmt.Fprintf(b, " - %s", m.Timestamp)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(b, "%s\n\n", m.Content)

	meta := []string{fmt.Sprintf("**Type:** %s", m.Type)}
	if len(m.Tags) > 0 {
		meta = append(meta, fmt.Sprintf("**Tags:** %s", strings.Join(m.Tags, ", ")))
	}
	if c := m.Enrichment.ConventionalCategory; c != "" {
		meta = append(meta, fmt.Sprintf("**Category:** %s", c))
	}
	fmt.Fprintf(b, "%s\n", strings.Join(meta, " | "))

	if m.Enrichment.Impact != "" {
		fmt.Fprintf(b, "\n> %s\n", m.Enrichment.Impact)
	}
	if len(m.Enrichment.Keywords) > 0 {
		fmt.Fprintf(b, "\nKeywords: %s\n", strings.Join(m.Enrichment.Keywords, ", "))
	}
	if d := m.Enrichment.FormattedDiff; d != "" && d != enrich.NoCodeChanges {
		fmt.Fprintf(b, "\n```\n%s\n```\n", strings.TrimRight(d, "\n"))
	}
	b.WriteString("\n---\n")
}

func capitalize(s string) string {
	if s == "" {
		return "Unknown"
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
