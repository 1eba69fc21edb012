package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/store"
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("51"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))
)

func field(label, value string) string {
	return fmt.Sprintf("  %s %s", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func renderHealth(h *HealthResponse) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("chatlogd"))
	b.WriteString("\n")

	status := healthyStyle.Render(h.Status)
	if h.Status != "ok" {
		status = warningStyle.Render(h.Status)
	}
	fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("Server Status:"), status)
	b.WriteString(field("Conversations", fmt.Sprint(h.Conversations)))
	b.WriteString("\n")
	if h.Indexed != nil {
		b.WriteString(field("Indexed", fmt.Sprint(*h.Indexed)))
	} else {
		fmt.Fprintf(&b, "  %s %s", labelStyle.Render("Indexed:"), dimStyle.Render("search disabled"))
	}
	return b.String()
}

func renderSaved(rec *conversation.Record, path string) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Saved"))
	b.WriteString("\n")
	for _, line := range []string{
		field("Path", path),
		field("ID", rec.ID),
		field("Project", rec.ProjectName),
		field("Title", rec.Title),
		field("Messages", fmt.Sprint(rec.MessageCount)),
	} {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if len(rec.FilesMentioned) > 0 {
		b.WriteString(field("Files", strings.Join(rec.FilesMentioned, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

func renderOverview(ov store.Overview) string {
	if len(ov.Projects) == 0 {
		return dimStyle.Render("No conversations saved yet.") + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("Projects"))
	b.WriteString("\n")
	for _, p := range ov.Projects {
		fmt.Fprintf(&b, "%s %s\n",
			sectionStyle.Render(p.Name),
			dimStyle.Render(fmt.Sprintf("(%d updates, %s)", p.Updates, p.Status)))
		for _, s := range ov.ProjectSummaries {
			if s.ProjectName != p.Name {
				continue
			}
			fmt.Fprintf(&b, "  %s %s %s\n",
				labelStyle.Render(s.ID),
				valueStyle.Render(s.Title),
				dimStyle.Render(fmt.Sprintf("[%d messages]", s.MessageCount)))
		}
	}
	return b.String()
}

func renderHits(query string, hits []store.Hit) string {
	if len(hits) == 0 {
		return dimStyle.Render(fmt.Sprintf("No conversations match %q.", query)) + "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Results for %q", query)))
	b.WriteString("\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1,
			valueStyle.Render(h.Title),
			dimStyle.Render(fmt.Sprintf("(%s, %.2f)", h.ProjectName, h.Score)))
		fmt.Fprintf(&b, "   %s %s\n", labelStyle.Render("id:"), h.ID)
		if h.Summary != "" {
			fmt.Fprintf(&b, "   %s\n", h.Summary)
		}
	}
	return b.String()
}
