// Buyerd is a conversational purchasing assistant daemon.
//
// It classifies free-form shopping messages, searches and filters
// product results, checks cart items against the purchase policy and
// drives approvals over NATS, exposing everything as an HTTP JSON API.
//
// Configuration comes from a YAML file and environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	buyerd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9180 ORACLE_BASE_URL=http://localhost:11434/v1 buyerd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/philippgille/chromem-go"

	"github.com/fyrsmithlabs/buyerd/internal/approval"
	"github.com/fyrsmithlabs/buyerd/internal/artifact"
	"github.com/fyrsmithlabs/buyerd/internal/assist"
	"github.com/fyrsmithlabs/buyerd/internal/cart"
	"github.com/fyrsmithlabs/buyerd/internal/catalog"
	"github.com/fyrsmithlabs/buyerd/internal/compliance"
	"github.com/fyrsmithlabs/buyerd/internal/config"
	"github.com/fyrsmithlabs/buyerd/internal/filter"
	"github.com/fyrsmithlabs/buyerd/internal/justify"
	"github.com/fyrsmithlabs/buyerd/internal/logging"
	"github.com/fyrsmithlabs/buyerd/internal/notify"
	"github.com/fyrsmithlabs/buyerd/internal/oracle"
	"github.com/fyrsmithlabs/buyerd/internal/planner"
	"github.com/fyrsmithlabs/buyerd/internal/router"
	"github.com/fyrsmithlabs/buyerd/internal/server"
	"github.com/fyrsmithlabs/buyerd/internal/session"
	"github.com/fyrsmithlabs/buyerd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  buyerd           Start the buyerd daemon\n")
			fmt.Fprintf(os.Stderr, "  buyerd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("buyerd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires all dependencies and blocks until the context is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	srv, err := server.New(deps.assistant, deps.metrics, logger, server.Config{Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// dependencies holds everything run wires together.
type dependencies struct {
	assistant *assist.Assistant
	metrics   *telemetry.Metrics
	nc        *nats.Conn
	consumer  *notify.DecisionConsumer
}

func (d *dependencies) close() {
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.nc != nil {
		d.nc.Close()
	}
}

// initDependencies builds the service graph: oracles, search, policy
// index, NATS, stores and the assistant.
func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	completer, err := oracle.NewClient(oracle.Config{
		BaseURL:       cfg.Oracle.BaseURL,
		Model:         cfg.Oracle.Model,
		APIKey:        cfg.Oracle.APIKey,
		Timeout:       cfg.Oracle.Timeout,
		RatePerSecond: cfg.Oracle.RatePerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating oracle client: %w", err)
	}

	searcher, err := catalog.NewHTTPSearcher(catalog.HTTPSearcherConfig{
		BaseURL:  cfg.Search.BaseURL,
		APIKey:   cfg.Search.APIKey,
		Country:  cfg.Search.Country,
		Language: cfg.Search.Language,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("creating search adapter: %w", err)
	}

	var store artifact.BlobStore
	if cfg.Cache.Dir != "" {
		store, err = artifact.NewFSStore(expandHome(cfg.Cache.Dir))
		if err != nil {
			return nil, fmt.Errorf("creating result cache store: %w", err)
		}
	}
	cache := artifact.NewQueryCache(store, logger)

	metrics := telemetry.New()

	var checker *compliance.Checker
	if cfg.Policy.Path != "" {
		embed := chromem.NewEmbeddingFuncOpenAICompat(
			cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Policy.EmbeddingModel, nil)
		index, err := compliance.NewPolicyIndex(ctx,
			expandHome(cfg.Policy.Path), expandHome(cfg.Policy.IndexDir),
			cfg.Policy.ChunkSize, embed, logger)
		if err != nil {
			return nil, fmt.Errorf("indexing purchase policy: %w", err)
		}
		checker = compliance.NewChecker(index,
			oracle.Instrument(completer, "compliance", metrics), cfg.Policy.TopK, logger)
	} else {
		return nil, fmt.Errorf("policy path is required (POLICY_PATH or policy.path)")
	}

	nc, err := notify.Connect(cfg.Approvals.NATSURL)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore()
	carts := cart.NewStore()
	registry := approval.NewRegistry(notify.NewPublisher(nc, logger), logger)

	classifier := planner.NewLLMClassifier(oracle.Instrument(completer, "planner", metrics), logger)
	generator := filter.NewLLMGenerator(oracle.Instrument(completer, "filter", metrics), logger)
	justifier := justify.NewLLMJustifier(oracle.Instrument(completer, "justify", metrics), logger)
	rt := router.New(searcher, generator, justifier, cache, metrics, logger)

	assistant := assist.New(sessions, carts, classifier, rt, checker, registry,
		metrics, cfg.Approvals.ApproverID, logger)

	consumer, err := notify.NewDecisionConsumer(nc, func(ctx context.Context, d notify.Decision) error {
		_, err := assistant.Execute(ctx, d.Approver, assist.CommandRequest{
			Command:   assist.CmdDecide,
			RequestID: d.RequestID,
			Accept:    &d.Accept,
		})
		return err
	}, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &dependencies{assistant: assistant, metrics: metrics, nc: nc, consumer: consumer}, nil
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
