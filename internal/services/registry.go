package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chatlog/internal/classify"
	"github.com/fyrsmithlabs/chatlog/internal/config"
	"github.com/fyrsmithlabs/chatlog/internal/conversation"
	"github.com/fyrsmithlabs/chatlog/internal/embeddings"
	"github.com/fyrsmithlabs/chatlog/internal/enrich"
	"github.com/fyrsmithlabs/chatlog/internal/llm"
	"github.com/fyrsmithlabs/chatlog/internal/logging"
	"github.com/fyrsmithlabs/chatlog/internal/nlp"
	"github.com/fyrsmithlabs/chatlog/internal/secrets"
	"github.com/fyrsmithlabs/chatlog/internal/store"
	"github.com/fyrsmithlabs/chatlog/internal/summarize"
)

// DefaultAllowlistFile is read when secrets.allowlist_path is unset.
const DefaultAllowlistFile = ".chatlog-allowlist.toml"

// Registry provides access to the wired services.
type Registry interface {
	Assembler() *conversation.Assembler
	Store() *store.Store
	Scrubber() *secrets.Scrubber
	// LLM is nil when no credential is configured.
	LLM() llm.Client
	Models() *nlp.Handle
	Close() error
}

// Options overrides pieces Build would otherwise construct.
type Options struct {
	Logger *logging.Logger
	// Provider replaces the configured embeddings provider.
	Provider func() (embeddings.Provider, error)
	// LLM replaces the configured client.
	LLM llm.Client
	// SkipNATS leaves publication off even when a URL is configured.
	SkipNATS bool
}

type registry struct {
	assembler *conversation.Assembler
	store     *store.Store
	scrubber  *secrets.Scrubber
	llm       llm.Client
	models    *nlp.Handle
	publisher *store.Publisher
}

// Build wires every service from cfg.
func Build(ctx context.Context, cfg *config.Config, opts Options) (Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	scrubber, err := newScrubber(cfg.Secrets)
	if err != nil {
		return nil, err
	}

	client := opts.LLM
	if client == nil {
		client, err = llm.New(cfg.LLM, llm.WithScrubber(scrubber))
		switch {
		case errors.Is(err, llm.ErrNotConfigured):
			logger.Info(ctx, "no LLM credential configured, classifying locally")
			client = nil
		case err != nil:
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
	}

	build := opts.Provider
	if build == nil {
		ecfg := cfg.Embeddings
		if !ecfg.APIKey.IsSet() {
			ecfg.APIKey = cfg.LLM.APIKey
		}
		build = func() (embeddings.Provider, error) { return embeddings.NewProvider(ecfg) }
	}
	models := nlp.NewHandle(build)

	strategy, err := classify.ParseStrategy(cfg.Classifier.Strategy)
	if err != nil {
		return nil, err
	}
	classifierOpts := []classify.Option{
		classify.WithThreshold(cfg.Classifier.Threshold),
		classify.WithLogger(logger),
	}
	if client != nil {
		classifierOpts = append(classifierOpts, classify.WithLLM(client))
	}

	assembler := conversation.NewAssembler(
		summarize.New(client, summarize.WithLogger(logger)),
		classify.New(models, strategy, classifierOpts...),
		enrich.New(models, enrich.WithThreshold(cfg.Classifier.Threshold), enrich.WithLogger(logger)),
		conversation.WithRequireExternal(cfg.Classifier.RequireExternal),
		conversation.WithLogger(logger),
	)

	r := &registry{
		assembler: assembler,
		scrubber:  scrubber,
		llm:       client,
		models:    models,
	}

	storeOpts := []store.Option{store.WithLogger(logger)}
	if cfg.Storage.IndexEnabled {
		idx, err := store.NewIndex(cfg.Storage.IndexPath, models)
		if err != nil {
			return nil, err
		}
		storeOpts = append(storeOpts, store.WithIndex(idx))
	}
	if cfg.NATS.URL != "" && !opts.SkipNATS {
		pub, err := store.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			// Publication is best effort.
			logger.Warn(ctx, "NATS unavailable, saved conversations will not be published", zap.Error(err))
		} else {
			r.publisher = pub
			storeOpts = append(storeOpts, store.WithPublisher(pub))
		}
	}
	r.store = store.New(store.NewFileSink(cfg.Storage.LogsDirectory), storeOpts...)
	return r, nil
}

func newScrubber(cfg config.SecretsConfig) (*secrets.Scrubber, error) {
	scfg := secrets.DefaultConfig()
	scfg.Enabled = cfg.Enabled
	path := cfg.AllowlistPath
	if path == "" {
		path = DefaultAllowlistFile
	}
	allow, err := secrets.LoadAllowlist(path)
	if err != nil {
		return nil, err
	}
	scfg.AllowList = append(scfg.AllowList, allow...)
	s, err := secrets.New(scfg)
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}
	return s, nil
}

func (r *registry) Assembler() *conversation.Assembler { return r.assembler }
func (r *registry) Store() *store.Store                { return r.store }
func (r *registry) Scrubber() *secrets.Scrubber        { return r.scrubber }
func (r *registry) LLM() llm.Client                    { return r.llm }
func (r *registry) Models() *nlp.Handle                { return r.models }

// Close drains the NATS connection and releases the embeddings provider.
func (r *registry) Close() error {
	var errs []error
	if r.publisher != nil {
		if err := r.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}
	if err := r.models.Close(); err != nil {
		errs = append(errs, fmt.Errorf("embeddings close: %w", err))
	}
	return errors.Join(errs...)
}
