package conversation

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
	"github.com/fyrsmithlabs/chatlog/internal/workspace"
)

// DefaultProject names conversations saved without a project.
const DefaultProject = "MCP_Chat_Logger"

// Role is the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleUnknown   Role = "unknown"
)

// ParseRole maps anything other than user or assistant to RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser
	case RoleAssistant:
		return RoleAssistant
	default:
		return RoleUnknown
	}
}

// RawMessage is one input turn. A missing content field decodes as "".
type RawMessage struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// UnmarshalJSON accepts content as a string or as a list of text blocks and
// normalizes the role.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role      string          `json:"role"`
		Content   json.RawMessage `json:"content"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = ParseRole(raw.Role)
	m.Content = contentText(raw.Content)
	m.Timestamp = scalarText(raw.Timestamp)
	return nil
}

func contentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return joinText(blocks)
	}
	return ""
}

// scalarText renders a string or number timestamp as text.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// State is a step of conversation assembly.
type State string

const (
	StateReceived    State = "RECEIVED"
	StateSummarizing State = "SUMMARIZING"
	StateClassifying State = "CLASSIFYING"
	StateAssembled   State = "ASSEMBLED"
)

// Message is a classified and enriched message. It is not modified after
// assembly.
type Message struct {
	Role        Role          `json:"role"`
	Content     string        `json:"content"`
	Timestamp   string        `json:"timestamp"`
	Type        classify.Type `json:"type"`
	Tags        []string      `json:"tags"`
	AIModel     string        `json:"ai_model"`
	BeforeCode  *string       `json:"before_code,omitempty"`
	AfterCode   *string       `json:"after_code,omitempty"`
	CodeChanges *string       `json:"code_changes,omitempty"`
	Enrichment  enrich.Record `json:"enrichment"`
}

// Record is an assembled conversation. MessageCount always equals
// len(Messages).
type Record struct {
	ID               string             `json:"id"`
	ConversationID   string             `json:"conversation_id"`
	ProjectName      string             `json:"project_name"`
	Title            string             `json:"title"`
	Summary          string             `json:"summary"`
	Messages         []Message          `json:"messages"`
	MessageCount     int                `json:"message_count"`
	Participants     []Role             `json:"participants"`
	FilesMentioned   []string           `json:"files_mentioned"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	WorkspaceChanges []workspace.Change `json:"workspace_changes,omitempty"`
}

// Normalize fills fields older or hand-written records may lack.
func (r *Record) Normalize() {
	if r.ID == "" {
		r.ID = r.ConversationID
	}
	if r.ConversationID == "" {
		r.ConversationID = r.ID
	}
	if r.Messages == nil {
		r.Messages = []Message{}
	}
	r.MessageCount = len(r.Messages)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
}

// Request asks for one conversation to be assembled.
type Request struct {
	// ID is generated when empty.
	ID string `json:"conversation_id,omitempty"`
	// Project defaults to DefaultProject.
	Project          string             `json:"project_name,omitempty"`
	Messages         []RawMessage       `json:"messages"`
	WorkspaceChanges []workspace.Change `json:"workspace_changes,omitempty"`
}
