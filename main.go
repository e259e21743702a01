package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabfab/policynth/chat"
	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/database"
	"github.com/fabfab/policynth/diagnostics"
	"github.com/fabfab/policynth/embeddings"
	"github.com/fabfab/policynth/engine"
	"github.com/fabfab/policynth/index"
	"github.com/fabfab/policynth/ingestion"
	"github.com/fabfab/policynth/intent"
	"github.com/fabfab/policynth/knowledge"
	"github.com/fabfab/policynth/llm"
)

var (
	cfgFile string
	cfg     config.Config
	logger  = log.New(os.Stderr, "", log.LstdFlags)
)

var rootCmd = &cobra.Command{
	Use:   "policynth",
	Short: "Answer questions about insurance policy documents",
	Long: `policynth ingests one insurance policy per request, classifies each question,
retrieves the most relevant policy sections and answers from them.

Example usage:
  policynth serve
  policynth ask --doc policy.pdf -q "What is the grace period?"
  policynth classify "Is cosmetic surgery covered?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadFile(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file layered over environment settings")
	rootCmd.AddCommand(serveCmd(), askCmd(), classifyCmd(), diagnosticsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// closers runs cleanup functions in reverse order.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func buildEngine(ctx context.Context, cfg config.Config, logger *log.Logger) (*engine.Engine, closers, error) {
	var cleanup closers

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, cleanup, fmt.Errorf("llm setup: %w", err)
	}

	classifier, err := buildClassifier(cfg, false, logger)
	if err != nil {
		return nil, cleanup, err
	}

	var provider index.Provider = index.MemoryProvider{}
	if cfg.IndexBackend == config.IndexPostgres {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("postgres connection: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		provider = index.NewPostgresProvider(pool, cfg.Embeddings.Dimension)
	}

	recorder, closeRecorder, err := buildRecorder(ctx, cfg)
	if err != nil {
		cleanup.close()
		return nil, nil, err
	}
	if closeRecorder != nil {
		cleanup = append(cleanup, closeRecorder)
	}

	eng, err := engine.New(engine.Deps{
		Chunker:     ingestion.NewService(cfg, logger),
		Embedder:    embeddings.NewChunkEmbedder(embedder, cfg.Embeddings.BatchSize, cfg.Embeddings.Concurrency),
		Index:       provider,
		Classifier:  classifier,
		Synthesizer: chat.NewService(llmClient, logger),
		Recorder:    recorder,
		Retrieval:   cfg.Tuning.Retrieval,
		Logger:      logger,
	})
	if err != nil {
		cleanup.close()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

func buildClassifier(cfg config.Config, rulesOnly bool, logger *log.Logger) (*intent.Classifier, error) {
	if rulesOnly {
		return intent.NewRulesOnly(cfg.Tuning.Intent), nil
	}
	client, err := llm.NewIntentClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("intent llm setup: %w", err)
	}
	return intent.NewClassifier(client, cfg.Tuning.Intent, logger), nil
}

func buildRecorder(ctx context.Context, cfg config.Config) (diagnostics.Recorder, func(), error) {
	switch cfg.Diagnostics.Backend {
	case config.DiagnosticsBolt:
		store, err := diagnostics.OpenBoltStore(cfg.Diagnostics.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.DiagnosticsNeo4j:
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			return nil, nil, fmt.Errorf("neo4j connection: %w", err)
		}
		return knowledge.NewGraphRecorder(driver), func() { _ = driver.Close(context.Background()) }, nil
	default:
		return nil, nil, nil
	}
}
