package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hollis-ai/reverie/internal/api"
	"github.com/hollis-ai/reverie/internal/cache"
	"github.com/hollis-ai/reverie/internal/config"
	"github.com/hollis-ai/reverie/internal/consolidate"
	"github.com/hollis-ai/reverie/internal/contact"
	"github.com/hollis-ai/reverie/internal/decision"
	"github.com/hollis-ai/reverie/internal/graph"
	"github.com/hollis-ai/reverie/internal/limiter"
	"github.com/hollis-ai/reverie/internal/mind"
	"github.com/hollis-ai/reverie/internal/notify"
	"github.com/hollis-ai/reverie/internal/provider"
	"github.com/hollis-ai/reverie/internal/scheduler"
	pgstore "github.com/hollis-ai/reverie/internal/store"
	"github.com/hollis-ai/reverie/internal/taskqueue"
	"github.com/hollis-ai/reverie/internal/trust"
)

// unavailableGraph stands in when Neo4j is down, so every consumer sees an
// error instead of a nil interface.
type unavailableGraph struct{}

func (unavailableGraph) RecentConcepts(ctx context.Context, n int) ([]graph.Concept, error) {
	return nil, fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) Reinforce(ctx context.Context, name string) error {
	return fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) Relate(ctx context.Context, from, to, relationType string) error {
	return fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) Relations(ctx context.Context, name string) ([]graph.Relation, error) {
	return nil, fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) PruneWeakRelations(ctx context.Context, floor int) (int, error) {
	return 0, fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) MergeDuplicateConcepts(ctx context.Context) (int, error) {
	return 0, fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) CapConcepts(ctx context.Context, max int) (int, error) {
	return 0, fmt.Errorf("knowledge graph unavailable")
}

func (unavailableGraph) CapRelations(ctx context.Context, max int) (int, error) {
	return 0, fmt.Errorf("knowledge graph unavailable")
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Reverie...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/reverie.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// PostgreSQL holds all durable cognition, so its absence is fatal.
	store, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("PostgreSQL unavailable", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Knowledge graph degrades: the loop keeps running without concepts.
	var conceptSource decision.ConceptSource = unavailableGraph{}
	var conceptGraph taskqueue.ConceptGraph = unavailableGraph{}
	var knowledgeGraph consolidate.KnowledgeGraph = unavailableGraph{}
	var graphReader api.GraphReader = unavailableGraph{}
	kg, gErr := graph.New(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
	if gErr != nil {
		logger.Warn("Neo4j unavailable, running without knowledge graph", zap.Error(gErr))
	} else {
		defer kg.Close(context.Background())
		if err := kg.EnsureConstraints(context.Background()); err != nil {
			logger.Warn("graph constraint setup failed", zap.Error(err))
		}
		conceptSource = kg
		conceptGraph = kg
		knowledgeGraph = kg
		graphReader = kg
	}

	// Model providers behind the router, limiter, and cache.
	router := provider.NewRouter(logger)
	for i, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Model:   pc.Model,
			Timeout: cfg.Cognition.CallTimeout(),
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAI(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropic(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
			continue
		}
		if i == 0 {
			router.SetDefault(pc.ID)
			router.SetFallbacks(pc.Fallback)
		}
	}

	lim := limiter.New(cfg.RateLimit.MinSpacing(), cfg.RateLimit.WindowCap, cfg.RateLimit.Cooldown(), logger)
	respCache := cache.New(cfg.Cache.Capacity, logger)
	invoker := provider.NewInvoker(router, respCache, lim, provider.InvokerOptions{
		Timeout:     cfg.Cognition.CallTimeout(),
		Retries:     cfg.Cognition.CallRetries,
		Backoff:     cfg.Cognition.RetryBackoff(),
		StateTTL:    cfg.Cache.StateTTL(),
		CreativeTTL: cfg.Cache.CreativeTTL(),
	}, logger)

	// Cognition components
	stateMachine := mind.NewStateMachine(store, logger)

	queue := taskqueue.New(store, logger)
	handlers := taskqueue.NewHandlers(invoker, conceptGraph, store, store, logger)
	handlers.RegisterAll(queue)

	engine := decision.NewEngine(invoker, stateMachine, conceptSource, store, store, store,
		decision.SnapshotOptions{
			Concepts:    cfg.Cognition.SnapshotConcepts,
			Questions:   cfg.Cognition.SnapshotQuestions,
			Reflections: cfg.Cognition.SnapshotReflections,
		}, logger)

	gate := contact.NewGate(store, stateMachine,
		cfg.Contact.MinQuestionPriority, cfg.Contact.MinIntensity, logger)

	scorer := trust.NewScorer(store, cfg.Trust.ImpactDivisor, logger)

	consolidator := consolidate.New(store, knowledgeGraph, consolidate.Options{
		LogRetention:        cfg.Consolidation.LogRetention(),
		EpisodicRetention:   cfg.Consolidation.EpisodicRetention(),
		MinRelationStrength: cfg.Consolidation.MinRelationStrength,
		MaxConcepts:         cfg.Consolidation.MaxConcepts,
		MaxRelations:        cfg.Consolidation.MaxRelations,
		MaxLogEntries:       cfg.Consolidation.MaxLogEntries,
	}, logger)

	// Outbound notification channels
	fanout := notify.NewFanout(logger)
	if cfg.Notify.Stream.Enabled {
		stream, sErr := notify.NewStreamNotifier(context.Background(),
			cfg.Database.Redis.URL, cfg.Notify.Stream.Stream)
		if sErr != nil {
			logger.Warn("Redis unavailable, running without stream notifications", zap.Error(sErr))
		} else {
			defer stream.Close()
			fanout.Register(stream)
		}
	}
	if cfg.Notify.Discord.Enabled && cfg.Notify.Discord.BotToken != "" {
		discord, dErr := notify.NewDiscordNotifier(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID)
		if dErr != nil {
			logger.Warn("Discord unavailable", zap.Error(dErr))
		} else {
			defer discord.Close()
			fanout.Register(discord)
		}
	}
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.BotToken != "" {
		fanout.Register(notify.NewSlackNotifier(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.ChannelID))
	}

	// The loop itself
	loop := scheduler.New(stateMachine, engine, queue, gate, fanout, store, consolidator,
		scheduler.Options{
			Interval:            cfg.Cognition.CycleInterval(),
			InitialDelay:        cfg.Cognition.InitialDelay(),
			ConsolidateInterval: cfg.Consolidation.Interval(),
			PressureHighWater:   cfg.Cognition.PressureHighWater,
			DeliveryMaxAttempts: cfg.Contact.MaxDeliveryAttempts,
		}, logger)
	if err := loop.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	// HTTP server
	handler := api.NewHandler(loop, stateMachine, store, store, scorer, store, graphReader, respCache, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Reverie listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")

	loop.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("Reverie stopped")
}
