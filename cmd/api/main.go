// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/cms"
	"github.com/capitalize-ai/ai-twin/internal/config"
	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/internal/handler"
	"github.com/capitalize-ai/ai-twin/internal/middleware"
	natsclient "github.com/capitalize-ai/ai-twin/internal/nats"
	"github.com/capitalize-ai/ai-twin/internal/ratelimit"
	"github.com/capitalize-ai/ai-twin/internal/relay"
	"github.com/capitalize-ai/ai-twin/internal/service"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server", zap.String("llm", cfg.DefaultLLM))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, logger.ServiceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	clk := clock.Real()

	// Turn event feed (optional)
	var (
		publisher   natsclient.Publisher = natsclient.NopPublisher{}
		eventReader handler.EventReader
		natsHealth  handler.ConnectionChecker
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		go recordStreamInfo(ctx, streamManager, log)

		publisher = streamManager
		eventReader = streamManager
		natsHealth = natsClient
	} else {
		log.Info("NATS_URL not set, turn event feed disabled")
	}

	// Profile data
	var source cms.Source = cms.NopSource{}
	if cfg.SanityProjectID != "" {
		sanity, err := cms.NewSanityClient(cms.SanityConfig{
			ProjectID:  cfg.SanityProjectID,
			Dataset:    cfg.SanityDataset,
			Token:      cfg.SanityToken,
			APIVersion: cfg.SanityAPIVersion,
		}, log)
		if err != nil {
			log.Fatal("failed to create Sanity client", zap.Error(err))
		}
		source = sanity
	} else {
		log.Warn("SANITY_PROJECT_ID not set, profile tools will report no data")
	}
	catalog := cms.NewCatalog(source, log)

	// Reasoning engine
	eng, err := engine.New(engine.Config{
		Provider:  engine.Provider(cfg.DefaultLLM),
		APIKey:    cfg.LLMAPIKey(),
		BaseURL:   baseURL(cfg),
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	}, catalog.Tools(), clk, log)
	if err != nil {
		log.Fatal("failed to create engine", zap.Error(err))
	}

	// Transcript and admission
	store := transcript.NewStore(clk)
	limiter := ratelimit.New(clk, log, cfg.SessionRateLimit, cfg.SessionRateWindow)
	if cfg.RateLimitSweepInterval > 0 {
		go limiter.Run(ctx, cfg.RateLimitSweepInterval)
	}

	// Initialize services
	rel := relay.New(store, eng, publisher, clk, log, cfg.HistoryLimit)
	threadSvc := service.NewThreadService(store, log)
	chatSvc := service.NewChatService(store, limiter, rel, catalog, publisher, clk, log)
	sessionSvc := service.NewSessionService(cfg.SessionSecret, cfg.SessionTTL, clk)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsHealth)
	threadHandler := handler.NewThreadHandler(threadSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, log)
	sessionHandler := handler.NewSessionHandler(sessionSvc, log)
	eventHandler := handler.NewEventHandler(eventReader, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Session(sessionSvc))
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.IPRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/sessions", sessionHandler.Create)

		r.Route("/threads", func(r chi.Router) {
			r.Get("/", threadHandler.List)

			r.Route("/{threadID}", func(r chi.Router) {
				r.Get("/", threadHandler.Get)
				r.Put("/", threadHandler.Update)
				r.Delete("/", threadHandler.Delete)

				// Items
				r.Get("/items", threadHandler.ListItems)
				r.Get("/items/{itemID}", threadHandler.GetItem)
				r.Delete("/items/{itemID}", threadHandler.DeleteItem)

				// Streaming
				r.Post("/messages", chatHandler.Send)

				// Turn events
				r.Get("/events", eventHandler.List)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// baseURL picks the endpoint override for the selected provider.
func baseURL(cfg *config.Config) string {
	if engine.Provider(cfg.DefaultLLM) == engine.ProviderGemini {
		return cfg.GeminiBaseURL
	}
	return ""
}

// recordStreamInfo exports stream size gauges until ctx is done.
func recordStreamInfo(ctx context.Context, m *natsclient.StreamManager, log *logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RecordStreamInfo(ctx); err != nil {
				log.Warn("failed to record stream info", zap.Error(err))
			}
		}
	}
}
