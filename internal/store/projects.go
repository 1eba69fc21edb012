package store

import "github.com/fyrsmithlabs/chatlog/internal/conversation"

// ProjectStatusActive is the only status reported today.
const ProjectStatusActive = "Active"

// Project counts the saved conversations of one project.
type Project struct {
	Name    string `json:"name"`
	Updates int    `json:"updates"`
	Status  string `json:"status"`
}

// ConversationSummary is the listing shape of a saved record.
type ConversationSummary struct {
	ID           string                 `json:"id"`
	ProjectName  string                 `json:"projectName"`
	Title        string                 `json:"title"`
	Summary      string                 `json:"summary"`
	Messages     []conversation.Message `json:"messages"`
	MessageCount int                    `json:"messageCount"`
}

// Overview groups saved conversations by project.
type Overview struct {
	Projects         []Project             `json:"projects"`
	ProjectSummaries []ConversationSummary `json:"projectSummaries"`
}

// Summarize builds an Overview from entries, keeping their order. Projects
// appear in order of their most recent conversation.
func Summarize(entries []Entry) Overview {
	ov := Overview{
		Projects:         []Project{},
		ProjectSummaries: make([]ConversationSummary, 0, len(entries)),
	}
	index := make(map[string]int)
	for _, e := range entries {
		r := e.Record
		ov.ProjectSummaries = append(ov.ProjectSummaries, ConversationSummary{
			ID:           r.ID,
			ProjectName:  r.ProjectName,
			Title:        r.Title,
			Summary:      r.Summary,
			Messages:     r.Messages,
			MessageCount: r.MessageCount,
		})
		if i, ok := index[r.ProjectName]; ok {
			ov.Projects[i].Updates++
			continue
		}
		index[r.ProjectName] = len(ov.Projects)
		ov.Projects = append(ov.Projects, Project{Name: r.ProjectName, Updates: 1, Status: ProjectStatusActive})
	}
	return ov
}
