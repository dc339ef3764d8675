package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echo-agent/echochamber/internal/adapter/discord"
	echohttp "github.com/echo-agent/echochamber/internal/adapter/http"
	echonats "github.com/echo-agent/echochamber/internal/adapter/nats"
	"github.com/echo-agent/echochamber/internal/adapter/natskv"
	"github.com/echo-agent/echochamber/internal/adapter/otel"
	"github.com/echo-agent/echochamber/internal/adapter/postgres"
	"github.com/echo-agent/echochamber/internal/adapter/ristretto"
	"github.com/echo-agent/echochamber/internal/adapter/tiered"
	"github.com/echo-agent/echochamber/internal/adapter/ws"
	"github.com/echo-agent/echochamber/internal/config"
	"github.com/echo-agent/echochamber/internal/logger"
	"github.com/echo-agent/echochamber/internal/port/cache"
	"github.com/echo-agent/echochamber/internal/port/messagequeue"
	"github.com/echo-agent/echochamber/internal/resilience"
	"github.com/echo-agent/echochamber/internal/service"
	"github.com/echo-agent/echochamber/internal/tool"

	openaiadapter "github.com/echo-agent/echochamber/internal/adapter/openai"
)

const identityCacheBytes = 16 << 20

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, config.DefaultConfigFile)

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"instances", len(cfg.Instances),
		"model", cfg.OpenAI.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	shutdownMetrics, err := otel.InitMetrics(ctx, cfg.Logging.Service, otlpEndpoint)
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}
	shutdownTracing, err := otel.InitTracing(ctx, cfg.Logging.Service, otlpEndpoint)
	if err != nil {
		return fmt.Errorf("otel tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
		_ = shutdownMetrics(shutdownCtx)
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("postgres ready")

	store := postgres.NewStore(pool)
	journal := postgres.NewEventStore(pool)

	var queue *echonats.Queue
	if cfg.NATS.URL != "" {
		queue, err = echonats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		log.Info("nats connected", "url", cfg.NATS.URL)
	}

	identityCache, err := buildIdentityCache(ctx, queue)
	if err != nil {
		return fmt.Errorf("identity cache: %w", err)
	}

	// --- Shared services ---

	hub := ws.NewHub()
	events := service.NewEvents(queueOrNil(queue), journal, hub, log).WithMetrics(metrics)

	completer := openaiadapter.NewCompleter(cfg.OpenAI)
	completer.SetBreaker(resilience.NewBreaker("openai", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	embedder := openaiadapter.NewEmbedder(cfg.OpenAI)
	embedder.SetBreaker(resilience.NewBreaker("openai-embed", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	notifyLevel := logger.ParseLevel(cfg.Logging.NotifyLevel)
	registry := tool.DefaultRegistry()

	// --- Per-instance actors ---

	lifecycles := make(map[string]*service.Lifecycle, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		chatClient := discord.NewClient(inst.BotToken)
		chatClient.SetBreaker(resilience.NewBreaker("discord-"+inst.ID, cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		chatClient.SetCache(identityCache)

		instLog := log.With("instance_id", inst.ID)
		if inst.LogChannelID != "" {
			sink := discord.NewLogSink(chatClient, inst.LogChannelID)
			instLog = slog.New(logger.NewNotifyHandler(instLog.Handler(), sink, notifyLevel))
		}

		deps := service.Deps{Store: store, Chat: chatClient, Embedder: embedder, Logger: instLog}
		precond := service.NewPrecondition(store, chatClient, cfg.Agent, instLog)
		engine := service.NewEngine(completer, registry, events, cfg.Agent.MaxTurns, instLog)
		lifecycles[inst.ID] = service.NewLifecycle(inst, cfg.Agent, deps, precond, engine, events)
	}

	supervisor := service.NewSupervisor(cfg.Instances, cfg.Agent, lifecycles, log)
	supervisor.Start(ctx)

	// --- HTTP ---

	handlers := echohttp.NewHandlers(holder, supervisor, store, journal)
	router := echohttp.NewRouter(handlers, hub, cfg.Logging.Service, cfg.Server.DevMode)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	supervisor.Wait()
	return err
}

// queueOrNil converts the optional queue to its port type without producing
// a non-nil interface around a nil pointer.
func queueOrNil(q *echonats.Queue) messagequeue.Queue {
	if q == nil {
		return nil
	}
	return q
}

// buildIdentityCache assembles the bot identity cache: in-process ristretto,
// tiered over a NATS KV bucket when the event stream is configured so
// restarts keep warm identities.
func buildIdentityCache(ctx context.Context, queue *echonats.Queue) (cache.Cache, error) {
	l1, err := ristretto.New(identityCacheBytes)
	if err != nil {
		return nil, err
	}
	if queue == nil {
		return l1, nil
	}

	kv, err := queue.KeyValue(ctx, "echo-identity", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return tiered.New(l1, natskv.New(kv), time.Hour), nil
}
