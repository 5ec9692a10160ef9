// Application wiring for CLI commands.
//
// Information Hiding:
// - Storage, embedder and index setup hidden
// - Provider construction and API key lookup hidden
// - Evaluation history restore hidden

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/richinex/scribe/agent"
	"github.com/richinex/scribe/chunker"
	"github.com/richinex/scribe/config"
	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/index"
	"github.com/richinex/scribe/internal/logging"
	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/retrieval"
	"github.com/richinex/scribe/storage"
	"github.com/richinex/scribe/tools"
)

// App holds the wired components of one CLI invocation.
type App struct {
	Settings     config.Settings
	DB           *storage.DB
	Retriever    *retrieval.Retriever
	Registry     *tools.Registry
	Evaluator    *eval.Evaluator
	Orchestrator *agent.Orchestrator

	completer llm.Completer
	out       io.Writer
	logger    zerolog.Logger
}

// Option configures NewApp.
type Option func(*appOptions)

type appOptions struct {
	completer  llm.Completer
	embedder   retrieval.Embedder
	requireLLM bool
	out        io.Writer
}

// WithCompleter uses c instead of building a provider from the settings.
func WithCompleter(c llm.Completer) Option {
	return func(o *appOptions) { o.completer = c }
}

// WithEmbedder uses e instead of the configured embedder.
func WithEmbedder(e retrieval.Embedder) Option {
	return func(o *appOptions) { o.embedder = e }
}

// RequireLLM makes a missing provider or API key a startup error. Without
// it the model-backed actions are still registered but fail when invoked.
func RequireLLM() Option {
	return func(o *appOptions) { o.requireLLM = true }
}

// WithOutput redirects command output, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(o *appOptions) { o.out = w }
}

// NewApp opens storage, restores the knowledge base and evaluation history
// and builds the orchestrator.
func NewApp(ctx context.Context, settings config.Settings, opts ...Option) (*App, error) {
	o := appOptions{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Settings: settings, out: o.out, logger: logging.For("cli")}

	completer, err := app.buildCompleter(o)
	if err != nil {
		return nil, err
	}
	app.completer = completer

	embedder := o.embedder
	if embedder == nil {
		if embedder, err = newEmbedder(ctx, settings.Retrieval); err != nil {
			return nil, err
		}
	}

	db, err := storage.Open(settings.Retrieval.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	app.DB = db

	if err := app.wire(ctx, embedder); err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) buildCompleter(o appOptions) (llm.Completer, error) {
	if o.completer != nil {
		return o.completer, nil
	}
	provider, err := a.Settings.LLM.NewProvider()
	if err != nil {
		if o.requireLLM {
			return nil, err
		}
		a.logger.Debug().Err(err).Msg("language model unavailable")
		return offlineCompleter{err: err}, nil
	}
	return llm.NewClient(provider,
		llm.WithTimeout(a.Settings.LLM.Timeout),
		llm.WithLogger(logging.For("llm")),
	), nil
}

func (a *App) wire(ctx context.Context, embedder retrieval.Embedder) error {
	s := a.Settings

	idx, err := index.New(embedder.Dimension())
	if err != nil {
		return err
	}
	a.Retriever, err = retrieval.NewRetriever(embedder, idx)
	if err != nil {
		return err
	}
	n, err := retrieval.Load(ctx, a.DB.Chunks(), a.Retriever)
	if err != nil {
		return fmt.Errorf("load knowledge base: %w", err)
	}
	a.logger.Debug().Int("chunks", n).Str("collection", s.Retrieval.Collection).Msg("knowledge base loaded")

	a.Registry = tools.NewRegistry(
		tools.WithExecutorConfig(tools.ExecutorConfig{
			Timeout:    s.Agent.StepTimeout,
			MaxRetries: s.Agent.ToolRetries,
		}),
		tools.WithLogger(logging.For("tools")),
	)
	err = a.Registry.WithDefaults(tools.Deps{
		Searcher:      a.Retriever,
		Completer:     a.completer,
		Sender:        a.DB.Outbox(),
		Results:       s.Retrieval.TopK,
		MinSimilarity: s.Retrieval.MinSimilarity,
		OutputDir:     s.Output.Dir,
	})
	if err != nil {
		return err
	}

	a.Evaluator, err = eval.New(
		eval.WithWeights(s.Eval.Weights),
		eval.WithExpectedSteps(s.Agent.ExpectedSteps),
		eval.WithStore(a.DB.History()),
		eval.WithLogger(logging.For("eval")),
	)
	if err != nil {
		return err
	}
	if _, err := a.Evaluator.Load(ctx); err != nil {
		return err
	}

	a.Orchestrator, err = agent.NewBuilder(a.Registry).
		Completer(a.completer).
		Evaluator(a.Evaluator).
		Config(agent.Config{
			FallbackCapability: s.Agent.FallbackCapability,
			MaxSteps:           s.Agent.MaxSteps,
		}).
		Logger(logging.For("agent")).
		Build()
	return err
}

// Ingestor returns an ingestor persisting into the app's database.
func (a *App) Ingestor() (*retrieval.Ingestor, error) {
	c, err := chunker.New(a.Settings.Retrieval.ChunkSize, a.Settings.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return retrieval.NewIngestor(c, a.Retriever,
		retrieval.WithStore(a.DB.Chunks()),
		retrieval.WithBatchSize(a.Settings.Retrieval.BatchSize),
		retrieval.WithLogger(logging.For("ingest")),
	), nil
}

// Close releases the database.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func newEmbedder(ctx context.Context, cfg config.RetrievalConfig) (retrieval.Embedder, error) {
	switch cfg.Embedder {
	case "", "hash":
		return retrieval.NewHashEmbedder(cfg.Dimension), nil
	case "openai":
		key, err := config.APIKeyFor("openai")
		if err != nil {
			return nil, err
		}
		return retrieval.NewOpenAIEmbedder(key, cfg.EmbeddingModel, cfg.Dimension)
	case "gemini":
		key, err := config.APIKeyFor("gemini")
		if err != nil {
			return nil, err
		}
		return retrieval.NewGeminiEmbedder(ctx, key, cfg.EmbeddingModel, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedder %q: %w", cfg.Embedder, model.ErrConfiguration)
	}
}

// offlineCompleter stands in for a provider that could not be built. The
// orchestrator falls back to single-step plans and rule-based critique;
// actions that need the model fail with the construction error.
type offlineCompleter struct {
	err error
}

func (c offlineCompleter) Complete(context.Context, llm.Prompt, *llm.ResponseFormat) (string, error) {
	return "", c.err
}
