package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the project token of every subject.
const DefaultSubjectPrefix = "chatlog.conversations"

var subjectUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Event is published after a conversation is saved.
type Event struct {
	ID           string    `json:"id"`
	ProjectName  string    `json:"project_name"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
	Path         string    `json:"path,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Publisher announces saved conversations on NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials url and returns a Publisher that owns the connection.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatlog"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return NewPublisher(nc, prefix), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the subject for project.
func (p *Publisher) Subject(project string) string {
	token := subjectUnsafe.ReplaceAllString(project, "_")
	if token == "" {
		token = "default"
	}
	return p.prefix + "." + token
}

// Publish sends an Event for rec.
func (p *Publisher) Publish(ctx context.Context, rec *conversation.Record, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Event{
		ID:           rec.ID,
		ProjectName:  rec.ProjectName,
		Title:        rec.Title,
		Summary:      rec.Summary,
		MessageCount: rec.MessageCount,
		Path:         path,
		SavedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(rec.ProjectName)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}
