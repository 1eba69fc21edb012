package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/fyrsmithlabs/chatlog/internal/workspace"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// instrumented wraps a tool handler with invocation metrics.
func instrumented[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.active(ctx, name, 1)
		defer s.metrics.active(ctx, name, -1)

		res, out, err := h(ctx, req, in)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "save_chat_history",
		Description: "Save a chat conversation. Every message is classified and enriched, the conversation is summarized and the record is written to the logs directory. Pass workspace_path to attach uncommitted source changes from that git repository.",
	}, instrumented(s, "save_chat_history", s.saveChatHistory))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_chat_history",
		Description: "Semantic search over saved conversation titles and summaries.",
	}, instrumented(s, "search_chat_history", s.searchChatHistory))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_projects",
		Description: "List projects with saved conversations and how many updates each has.",
	}, instrumented(s, "list_projects", s.listProjects))
}

// ===== SAVE =====

type chatMessage struct {
	Role      string `json:"role,omitempty" jsonschema:"Author of the message: user or assistant"`
	Content   string `json:"content" jsonschema:"Message text"`
	Timestamp string `json:"timestamp,omitempty" jsonschema:"When the message was sent"`
}

type saveInput struct {
	Messages       []chatMessage `json:"messages" jsonschema:"Messages in conversation order (may be empty)"`
	ConversationID string        `json:"conversation_id,omitempty" jsonschema:"Conversation identifier (generated when empty)"`
	ProjectName    string        `json:"project_name,omitempty" jsonschema:"Project the conversation belongs to (default: MCP_Chat_Logger)"`
	WorkspacePath  string        `json:"workspace_path,omitempty" jsonschema:"Path inside a git repository whose uncommitted changes should be attached"`
}

type saveOutput struct {
	ConversationID   string   `json:"conversation_id" jsonschema:"Identifier of the saved conversation"`
	Path             string   `json:"path" jsonschema:"File the record was written to"`
	Title            string   `json:"title" jsonschema:"Generated title"`
	Summary          string   `json:"summary" jsonschema:"Generated summary"`
	MessageCount     int      `json:"message_count" jsonschema:"Number of messages saved"`
	Types            []string `json:"types" jsonschema:"Classified type of each message"`
	FilesMentioned   []string `json:"files_mentioned" jsonschema:"Source files referenced in the conversation"`
	WorkspaceChanges int      `json:"workspace_changes" jsonschema:"Number of changed files attached from the workspace"`
}

func (s *Server) saveChatHistory(ctx context.Context, _ *mcp.CallToolRequest, args saveInput) (*mcp.CallToolResult, saveOutput, error) {
	req := conversation.Request{
		ID:       args.ConversationID,
		Project:  args.ProjectName,
		Messages: make([]conversation.RawMessage, len(args.Messages)),
	}
	for i, m := range args.Messages {
		req.Messages[i] = conversation.RawMessage{
			Role:      conversation.ParseRole(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}

	if args.ProjectName != "" {
		ctx = logging.WithProject(ctx, args.ProjectName)
	}
	if args.WorkspacePath != "" {
		changes, err := workspace.DetectChanges(args.WorkspacePath)
		switch {
		case errors.Is(err, workspace.ErrNotRepository):
			s.logger.Warn(ctx, "workspace is not a git repository", zap.String("path", args.WorkspacePath))
		case err != nil:
			s.logger.Warn(ctx, "detecting workspace changes failed", zap.Error(err))
		default:
			req.WorkspaceChanges = changes
		}
	}

	rec, err := s.assembler.Assemble(ctx, req)
	if err != nil {
		return nil, saveOutput{}, err
	}
	path, err := s.store.Save(ctx, rec)
	if err != nil {
		return nil, saveOutput{}, fmt.Errorf("saving conversation: %w", err)
	}

	types := make([]string, len(rec.Messages))
	for i, m := range rec.Messages {
		types[i] = string(m.Type)
	}
	return nil, saveOutput{
		ConversationID:   rec.ID,
		Path:             path,
		Title:            s.scrub(ctx, rec.Title),
		Summary:          s.scrub(ctx, rec.Summary),
		MessageCount:     rec.MessageCount,
		Types:            types,
		FilesMentioned:   rec.FilesMentioned,
		WorkspaceChanges: len(rec.WorkspaceChanges),
	}, nil
}

// ===== SEARCH =====

type searchInput struct {
	Query       string `json:"query" jsonschema:"Semantic search query"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default: 5)"`
	ProjectName string `json:"project_name,omitempty" jsonschema:"Only search this project"`
}

type searchResult struct {
	ID          string  `json:"id"`
	ProjectName string  `json:"project_name"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Score       float32 `json:"score"`
}

type searchOutput struct {
	Query   string         `json:"query" jsonschema:"Search query used"`
	Results []searchResult `json:"results" jsonschema:"Matching conversations, most similar first"`
	Count   int            `json:"count" jsonschema:"Number of results"`
}

func (s *Server) searchChatHistory(ctx context.Context, _ *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, searchOutput{}, fmt.Errorf("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	hits, err := s.store.Search(ctx, args.Query, limit, args.ProjectName)
	if err != nil {
		return nil, searchOutput{}, err
	}
	out := searchOutput{Query: args.Query, Results: make([]searchResult, len(hits)), Count: len(hits)}
	for i, h := range hits {
		out.Results[i] = searchResult{
			ID:          h.ID,
			ProjectName: h.ProjectName,
			Title:       s.scrub(ctx, h.Title),
			Summary:     s.scrub(ctx, h.Summary),
			Score:       h.Score,
		}
	}
	return nil, out, nil
}

// ===== PROJECTS =====

type listProjectsInput struct{}

type listProjectsOutput struct {
	Projects      []store.Project `json:"projects" jsonschema:"Projects ordered by most recent conversation"`
	Conversations int             `json:"conversations" jsonschema:"Total saved conversations"`
}

func (s *Server) listProjects(_ context.Context, _ *mcp.CallToolRequest, _ listProjectsInput) (*mcp.CallToolResult, listProjectsOutput, error) {
	ov, err := s.store.Overview()
	if err != nil {
		return nil, listProjectsOutput{}, err
	}
	return nil, listProjectsOutput{Projects: ov.Projects, Conversations: len(ov.ProjectSummaries)}, nil
}
