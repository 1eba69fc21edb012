package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const collectionName = "conversations"

var indexTracer = otel.Tracer("github.com/fyrsmithlabs/chatlog/internal/store")

// Hit is one search result.
type Hit struct {
	ID          string  `json:"id"`
	ProjectName string  `json:"project_name"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Score       float32 `json:"score"`
}

// Index is a semantic index over conversation titles and summaries.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder

	// mu serializes writes; chromem handles concurrent reads itself.
	mu sync.Mutex
}

// NewIndex opens an index. An empty path keeps it in memory; otherwise it is
// persisted under path.
func NewIndex(path string, embedder embeddings.Embedder) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening index at %s: %w", path, err)
		}
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &Index{db: db, collection: col, embedder: embedder}, nil
}

// Document returns the indexed text of rec.
func Document(rec *conversation.Record) string {
	return strings.TrimSpace(rec.Title + "\n\n" + rec.Summary)
}

// Add indexes rec, replacing any earlier entry with the same id.
func (x *Index) Add(ctx context.Context, rec *conversation.Record) error {
	ctx, span := indexTracer.Start(ctx, "Index.Add")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", rec.ID))

	content := Document(rec)
	if content == "" {
		return nil
	}
	vecs, err := x.embedder.EmbedDocuments(ctx, []string{content})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("embedding conversation: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedding conversation: got %d vectors", len(vecs))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	err = x.collection.AddDocument(ctx, chromem.Document{
		ID:      rec.ID,
		Content: content,
		Metadata: map[string]string{
			"project": rec.ProjectName,
			"title":   rec.Title,
			"summary": rec.Summary,
			"created": rec.CreatedAt.UTC().Format(time.RFC3339),
		},
		Embedding: vecs[0],
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding to index: %w", err)
	}
	return nil
}

// Search returns up to k conversations most similar to query. A non-empty
// project restricts results to that project.
func (x *Index) Search(ctx context.Context, query string, k int, project string) ([]Hit, error) {
	ctx, span := indexTracer.Start(ctx, "Index.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= document count.
	count := x.collection.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	var where map[string]string
	if project != "" {
		where = map[string]string{"project": project}
	}
	if k > count {
		k = count
	}

	results, err := x.collection.Query(ctx, query, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying index: %w", err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ID:          r.ID,
			ProjectName: r.Metadata["project"],
			Title:       r.Metadata["title"],
			Summary:     r.Metadata["summary"],
			Score:       r.Similarity,
		}
	}
	span.SetAttributes(attribute.Int("results", len(hits)))
	return hits, nil
}

// Count returns the number of indexed conversations.
func (x *Index) Count() int {
	return x.collection.Count()
}
