package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/relaykit/relay"
	"github.com/relaykit/relay/backend/cohere"
	"github.com/relaykit/relay/httpapi"
	"github.com/relaykit/relay/internal/config"
	"github.com/relaykit/relay/observer"
	"github.com/relaykit/relay/providers/calendar"
	"github.com/relaykit/relay/providers/code"
	"github.com/relaykit/relay/providers/general"
	"github.com/relaykit/relay/providers/tutor"
	"github.com/relaykit/relay/providers/websearch"
	"github.com/relaykit/relay/store/postgres"
	"github.com/relaykit/relay/store/sqlite"
)

func main() {
	cfg := config.Load(os.Getenv("RELAY_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if cfg.LLM.APIKey == "" {
		log.Fatal("relayd: llm api key required (set RELAY_LLM_API_KEY or [llm] api_key)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	var tracer relay.Tracer
	var stopTracing func(context.Context) error
	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx, cfg.Observer.Endpoint)
		if err != nil {
			log.Fatalf("relayd: observer init: %v", err)
		}
		stopTracing = shutdown
		tracer = observer.NewTracer()
		logger.Info("tracing enabled", "endpoint", cfg.Observer.Endpoint)
	}

	// Backend + embedding, retried; observed when tracing is on
	var backend relay.Backend = cohere.New(cfg.LLM.APIKey, cfg.LLM.Model, cohere.WithLogger(logger))
	var embedding relay.EmbeddingProvider = cohere.NewEmbedding(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if cfg.Observer.Enabled {
		backend = observer.WrapBackend(backend, cfg.LLM.Model)
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model)
	}
	backend = relay.WithRetry(backend)
	embedding = relay.WithEmbeddingRetry(embedding)

	// Store
	var store relay.ConversationStore
	var closeStore func()
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("relayd: postgres pool: %v", err)
		}
		pg := postgres.New(pool)
		if err := pg.Init(ctx); err != nil {
			log.Fatalf("relayd: postgres init: %v", err)
		}
		store = pg
		closeStore = pool.Close
	default:
		s := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			log.Fatalf("relayd: sqlite init: %v", err)
		}
		store = s
		closeStore = func() { s.Close() }
	}
	defer closeStore()

	// Capability registry
	rb := relay.NewRegistryBuilder("general")
	rb.Register(
		relay.Descriptor{Name: "general", Description: "general conversation and anything no specialist covers"},
		general.New(backend, general.WithLogger(logger)))
	rb.Register(
		relay.Descriptor{Name: "calendar", Description: "personal scheduling: reading and creating calendar events"},
		calendar.New(backend, calendar.NewMemorySource(), calendar.WithLogger(logger)))
	rb.Register(
		relay.Descriptor{Name: "code", Description: "generating, explaining, or critiquing source code"},
		code.New(backend, code.WithLogger(logger)))
	rb.Register(
		relay.Descriptor{Name: "tutor", Description: "teaching and step-by-step learning of a topic"},
		tutor.New(backend, tutor.WithLogger(logger)))
	if cfg.Search.BraveAPIKey != "" {
		rb.Register(
			relay.Descriptor{Name: "websearch", Description: "questions needing current information from the web"},
			websearch.New(backend, embedding, cfg.Search.BraveAPIKey, websearch.WithLogger(logger)))
	}
	registry, err := rb.Build()
	if err != nil {
		log.Fatalf("relayd: registry: %v", err)
	}

	// Routing core
	classifierOpts := []relay.ClassifierOption{relay.ClassifierLogger(logger)}
	evaluatorOpts := []relay.EvaluatorOption{
		relay.EvaluatorLogger(logger),
		relay.EvaluatorAlpha(cfg.Routing.EvalAlpha),
		relay.EvaluatorThreshold(cfg.Routing.EvalThreshold),
	}
	refinerOpts := []relay.RefinerOption{
		relay.RefinerLogger(logger),
		relay.RefinerMaxIterations(cfg.Routing.MaxIterations),
	}
	dispatcherOpts := []relay.DispatcherOption{relay.DispatcherLogger(logger)}
	handlerOpts := []relay.HandlerOption{
		relay.HandlerStore(store),
		relay.HandlerLogger(logger),
		relay.HandlerClarifyThreshold(cfg.Routing.ClarifyThreshold),
		relay.HandlerChunkTimeout(cfg.Routing.ChunkTimeout.Std()),
	}
	if tracer != nil {
		classifierOpts = append(classifierOpts, relay.ClassifierTracer(tracer))
		evaluatorOpts = append(evaluatorOpts, relay.EvaluatorTracer(tracer))
		refinerOpts = append(refinerOpts, relay.RefinerTracer(tracer))
		dispatcherOpts = append(dispatcherOpts, relay.DispatcherTracer(tracer))
		handlerOpts = append(handlerOpts, relay.HandlerTracer(tracer))
	}

	refiner := relay.NewRefiner(
		relay.NewClassifier(backend, registry, classifierOpts...),
		relay.NewEvaluator(backend, embedding, evaluatorOpts...),
		refinerOpts...)
	handler := relay.NewHandler(backend, refiner, relay.NewDispatcher(registry, dispatcherOpts...), handlerOpts...)

	api := httpapi.New(handler,
		httpapi.WithStore(store),
		httpapi.WithLogger(logger),
		httpapi.WithHistoryTurns(cfg.Routing.HistoryTurns),
		httpapi.WithAllowedOrigins(cfg.Server.AllowedOrigins))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "providers", registry.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("relayd: serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	handler.Drain()
	if stopTracing != nil {
		if err := stopTracing(shutdownCtx); err != nil {
			logger.Error("tracer shutdown", "error", err)
		}
	}
}
