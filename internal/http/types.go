package http

import (
	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/store"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Conversations int    `json:"conversations"`
	Indexed       *int   `json:"indexed,omitempty"`
}

// SaveResponse is the response body for POST /api/v1/conversations.
type SaveResponse struct {
	ID     string               `json:"id"`
	Path   string               `json:"path"`
	Record *conversation.Record `json:"record"`
}

// SearchResponse is the response body for GET /api/v1/conversations/search.
type SearchResponse struct {
	Query   string      `json:"query"`
	Results []store.Hit `json:"results"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content       string `json:"content"`
	FindingsCount int    `json:"findings_count"`
}
