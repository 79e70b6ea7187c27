// Command frontdesk is the main entry point for the frontdesk dialog server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/relayline/frontdesk/internal/assist"
	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/health"
	"github.com/relayline/frontdesk/internal/observe"
	"github.com/relayline/frontdesk/internal/resilience"
	"github.com/relayline/frontdesk/internal/scenario"
	"github.com/relayline/frontdesk/internal/server"
	"github.com/relayline/frontdesk/internal/turn"
	"github.com/relayline/frontdesk/pkg/provider/embeddings"
	oaiembed "github.com/relayline/frontdesk/pkg/provider/embeddings/openai"
	"github.com/relayline/frontdesk/pkg/provider/llm"
	"github.com/relayline/frontdesk/pkg/provider/llm/anyllm"
	oaillm "github.com/relayline/frontdesk/pkg/provider/llm/openai"
	"github.com/relayline/frontdesk/pkg/store"
	"github.com/relayline/frontdesk/pkg/store/memstore"
	"github.com/relayline/frontdesk/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadApp(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "frontdesk: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "frontdesk: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("frontdesk starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	var defaults *config.CompanyConfig
	if cfg.DefaultsPath != "" {
		defaults, err = config.Load(cfg.DefaultsPath)
		if err != nil {
			slog.Error("failed to load platform defaults", "path", cfg.DefaultsPath, "err", err)
			return 1
		}
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		configs  store.ConfigStore
		sink     store.EventSink
		usage    store.UsageLogger
		vars     store.VariableStore
		pg       *postgres.Store
		checkers []health.Checker
	)
	if cfg.Database.DSN != "" {
		pg, err = postgres.New(ctx, cfg.Database.DSN, cfg.Database.EmbeddingDimensions)
		if err != nil {
			slog.Error("failed to connect to database", "err", err)
			return 1
		}
		defer pg.Close()
		if defaults != nil {
			pg.SetDefaults(defaults)
		}
		configs, sink, usage, vars = pg, pg, pg, pg.Variables()
		checkers = append(checkers, health.Database(pg.Pool()))
		slog.Info("store ready", "kind", "postgres")
	} else {
		mem, err := loadMemStores(cfg.CompanyDir, defaults)
		if err != nil {
			slog.Error("failed to load company bundles", "dir", cfg.CompanyDir, "err", err)
			return 1
		}
		configs = mem
		sink = &memstore.EventSink{}
		usage = &memstore.UsageLogger{}
		vars = memstore.NewVariableStore()
		slog.Info("store ready", "kind", "memory", "company_dir", cfg.CompanyDir)
	}

	opts := []turn.Option{
		turn.WithVariables(vars),
		turn.WithMetrics(metrics),
	}

	// LLM assist is optional; without a provider the pipeline runs its
	// deterministic paths only.
	var guard *resilience.GuardedClient
	if cfg.LLM.Name != "" {
		client, err := buildLLM(cfg.LLM)
		if err != nil {
			slog.Error("failed to create llm provider", "name", cfg.LLM.Name, "err", err)
			return 1
		}
		guard = resilience.Guard(client, resilience.Config{})
		opts = append(opts, turn.WithAssist(assist.NewEngine(guard, usage, assist.WithEngineMetrics(metrics))))
		checkers = append(checkers, health.LLM(guard))
		slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Name, "model", cfg.LLM.Model)
	}

	// The semantic scenario fallback needs both Postgres and embeddings.
	if pg != nil && cfg.Embeddings.Name != "" {
		embedder, err := buildEmbeddings(cfg.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "name", cfg.Embeddings.Name, "err", err)
			return 1
		}
		opts = append(opts, turn.WithScenarios(scenario.NewPGSelector(pg.Pool(), embedder)))
		slog.Info("provider created", "kind", "embeddings", "name", cfg.Embeddings.Name, "model", cfg.Embeddings.Model)
	}

	runner := turn.NewRunner(configs, callstate.NewStore(), sink, opts...)

	srv := server.New(server.Config{Addr: cfg.Server.ListenAddr}, runner, health.New(checkers...), metrics)

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped via -ldflags at release build time.
var version = "dev"

// buildLLM constructs the completion client named in entry. "openai" uses
// the first-party SDK; everything else goes through the any-llm backends.
func buildLLM(entry config.ProviderEntry) (llm.Client, error) {
	switch entry.Name {
	case "openai":
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(entry.Name, entry.Model, opts...)
	}
}

// buildEmbeddings constructs the embeddings provider named in entry.
func buildEmbeddings(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []oaiembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaiembed.WithBaseURL(entry.BaseURL))
		}
		return oaiembed.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", entry.Name)
	}
}

// loadMemStores reads every company bundle in dir into an in-memory config
// store, resolving each against the platform defaults.
func loadMemStores(dir string, defaults *config.CompanyConfig) (*memstore.ConfigStore, error) {
	configs := memstore.NewConfigStore()
	if dir == "" {
		return configs, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		override, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if override.CompanyID == "" {
			return nil, fmt.Errorf("%s: company_id is required", path)
		}
		resolved := config.Resolve(defaults, override)
		configs.Put(override.CompanyID, resolved)
		slog.Info("company bundle loaded", "company_id", override.CompanyID, "path", path)
	}
	return configs, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
