package store

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"go.uber.org/zap"
)

// Store saves records to disk and fans them out to the optional index and
// publisher.
type Store struct {
	sink      *FileSink
	index     *Index
	publisher *Publisher
	logger    *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIndex enables semantic search.
func WithIndex(x *Index) Option {
	return func(s *Store) { s.index = x }
}

// WithPublisher enables NATS notifications.
func WithPublisher(p *Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store over sink.
func New(sink *FileSink, opts ...Option) *Store {
	s := &Store{sink: sink, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sink returns the underlying file sink.
func (s *Store) Sink() *FileSink { return s.sink }

// Index returns the index or nil.
func (s *Store) Index() *Index { return s.index }

// Save writes rec and returns its path. Index and publish failures are
// logged, not returned.
func (s *Store) Save(ctx context.Context, rec *conversation.Record) (string, error) {
	path, err := s.sink.Write(rec)
	if err != nil {
		return "", err
	}
	ctx = logging.WithConversationID(ctx, rec.ID)
	s.logger.Info(ctx, "conversation saved", zap.String("path", path))

	if s.index != nil {
		if err := s.index.Add(ctx, rec); err != nil {
			s.logger.Warn(ctx, "indexing conversation failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, rec, path); err != nil {
			s.logger.Warn(ctx, "publishing conversation failed", zap.Error(err))
		}
	}
	return path, nil
}

// Rebuild indexes every record on disk. It returns the number indexed.
func (s *Store) Rebuild(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	entries, err := s.sink.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.index.Add(ctx, e.Record); err != nil {
			return n, fmt.Errorf("indexing %s: %w", e.Path, err)
		}
		n++
	}
	return n, nil
}

// Search queries the index. It returns an error when no index is configured.
func (s *Store) Search(ctx context.Context, query string, k int, project string) ([]Hit, error) {
	if s.index == nil {
		return nil, ErrIndexDisabled
	}
	return s.index.Search(ctx, query, k, project)
}

// Overview lists projects and conversations on disk.
func (s *Store) Overview() (Overview, error) {
	entries, err := s.sink.List()
	if err != nil {
		return Overview{}, err
	}
	return Summarize(entries), nil
}
