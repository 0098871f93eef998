package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roastlabs/roastbot/internal/api"
	"github.com/roastlabs/roastbot/internal/config"
	"github.com/roastlabs/roastbot/internal/core"
	"github.com/roastlabs/roastbot/internal/corpus"
	"github.com/roastlabs/roastbot/internal/index"
	"github.com/roastlabs/roastbot/internal/llm"
	"github.com/roastlabs/roastbot/internal/memory"
	"github.com/roastlabs/roastbot/internal/store"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if !cfg.HasCredential() {
		logger.Warn("no upstream API key configured, chat will answer with an unavailability message")
	}

	// Upstream model client (completion + embeddings).
	llmClient, err := llm.New(llm.Options{
		Provider:       cfg.LLM.Provider,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	})
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}
	defer llmClient.Close()

	// Corpus and index. The index builds lazily on first retrieval so startup
	// does not block on the embedding API.
	loader := corpus.NewLoader(corpus.Config{
		Dir:       cfg.Corpus.Dir,
		ChunkSize: cfg.Corpus.ChunkSize,
	}, logger)
	chunks, themes := loader.Load()
	idx := index.New(llmClient, chunks, themes, logger)

	ragService := core.NewRAGService(idx, llmClient, cfg.Limits.CacheSize, cfg.Limits.CacheTTL, logger)

	// Persistence is optional: a broken database degrades to memory-only.
	var history store.HistoryStore
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Warn("failed to open history database, continuing without persistence", zap.Error(err))
	} else {
		defer dbStore.Close()
		history = dbStore
	}

	mem := memory.NewStore(cfg.Memory.Size)
	chatService := core.NewChatService(cfg, llmClient, ragService, mem, history, logger)

	apiHandler := api.NewAPIHandler(chatService, logger)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exiting gracefully")
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
