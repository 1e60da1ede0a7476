// Command policyrag serves the HR policy assistant.
//
// Usage:
//
//	policyrag serve --config config.yaml
//	policyrag healthcheck --config config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ipoteka-ai/policyrag/pkg/agent"
	"github.com/ipoteka-ai/policyrag/pkg/config"
	"github.com/ipoteka-ai/policyrag/pkg/embedders"
	"github.com/ipoteka-ai/policyrag/pkg/llms"
	"github.com/ipoteka-ai/policyrag/pkg/logger"
	"github.com/ipoteka-ai/policyrag/pkg/metrics"
	"github.com/ipoteka-ai/policyrag/pkg/reranker"
	"github.com/ipoteka-ai/policyrag/pkg/server"
	"github.com/ipoteka-ai/policyrag/pkg/vectorstore"
)

// CLI defines the command-line interface.
type CLI struct {
	Version     VersionCmd     `cmd:"" help:"Show version information."`
	Serve       ServeCmd       `cmd:"" help:"Start the HTTP server."`
	Healthcheck HealthcheckCmd `cmd:"" help:"Check connectivity to the vector store."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFormat string `help:"Log format (simple or json)." default:""`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("policyrag %s\n", version)
	return nil
}

type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	llm, err := llms.NewFromConfig(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	defer llm.Close()

	embedder, err := embedders.NewFromConfig(cfg.Embedder)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	defer embedder.Close()

	rr, err := reranker.NewHTTPReranker(cfg.Reranker)
	if err != nil {
		return fmt.Errorf("reranker: %w", err)
	}
	defer rr.Close()

	store, err := vectorstore.NewQdrantStore(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer store.Close()

	ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureCollection(ensureCtx, cfg.Embedder.Dimension); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}

	pipeline, err := agent.NewPipeline(*cfg, llm, embedder, rr, store, m)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server, pipeline, store, m, registry)
	return srv.Start(ctx)
}

type HealthcheckCmd struct{}

func (c *HealthcheckCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	store, err := vectorstore.NewQdrantStore(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.HealthCheck(ctx); err != nil {
		return err
	}

	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("ok: %d points in collection %s\n", count, cfg.VectorStore.Collection)
	return nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// CLI flags override config file logging settings.
	level := cfg.Logging.Level
	if cli.LogLevel != "" {
		level = cli.LogLevel
	}
	format := cfg.Logging.Format
	if cli.LogFormat != "" {
		format = cli.LogFormat
	}
	logger.Init(logger.ParseLevel(level), os.Stderr, format)
	return cfg, nil
}

func main() {
	_ = config.LoadDotEnv("")

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("policyrag"),
		kong.Description("Agentic RAG assistant for HR policy questions"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
