package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/hallyulabs/character-memory/pkg/ai"
	"github.com/hallyulabs/character-memory/pkg/bootstrap"
	"github.com/hallyulabs/character-memory/pkg/chatlog"
	"github.com/hallyulabs/character-memory/pkg/config"
	"github.com/hallyulabs/character-memory/pkg/db"
	"github.com/hallyulabs/character-memory/pkg/engine"
	"github.com/hallyulabs/character-memory/pkg/memory/assembler"
	"github.com/hallyulabs/character-memory/pkg/memory/extractor"
	"github.com/hallyulabs/character-memory/pkg/memory/reconciler"
	"github.com/hallyulabs/character-memory/pkg/memory/summarizer"
)

func main() {
	logger := log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		TimeFormat:      time.Kitchen,
	})

	envs, err := config.LoadConfig(true)
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	logger.Info("Using database path", "path", envs.DBPath)

	store, err := db.NewStore(envs.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to open store", "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()

	var nc *nats.Conn
	if envs.EmbedNATS {
		natsServer, err := bootstrap.StartEmbeddedNATSServer(logger)
		if err != nil {
			logger.Error("Embedded NATS unavailable, events disabled", "error", err)
		} else {
			defer natsServer.Shutdown()
			nc, err = bootstrap.NewNatsClient(natsServer.ClientURL())
			if err != nil {
				logger.Error("NATS client connect failed, events disabled", "error", err)
			}
		}
	} else if envs.NATSURL != "" {
		nc, err = bootstrap.NewNatsClient(envs.NATSURL)
		if err != nil {
			logger.Error("NATS client connect failed, events disabled", "error", err)
		}
	}
	if nc != nil {
		defer nc.Close()
	}

	limiter := ai.NewRateLimiter(60, time.Minute)
	defer limiter.Stop()
	aiService := ai.NewOpenAIService(logger, envs.CompletionsAPIKey, envs.CompletionsAPIURL).
		WithRateLimiter(limiter)

	logs := chatlog.NewFSStore(envs.ChatLogPath)

	memExtractor, err := extractor.New(aiService, envs.CompletionsModel, logger)
	if err != nil {
		logger.Fatal("Failed to build extractor", "error", err)
	}
	memReconciler, err := reconciler.New(store, logger)
	if err != nil {
		logger.Fatal("Failed to build reconciler", "error", err)
	}
	memSummarizer, err := summarizer.New(aiService, envs.CompletionsModel, store, logs, logger)
	if err != nil {
		logger.Fatal("Failed to build summarizer", "error", err)
	}
	memAssembler, err := assembler.New(store, logger)
	if err != nil {
		logger.Fatal("Failed to build assembler", "error", err)
	}

	memEngine, err := engine.New(engine.Dependencies{
		Logger:            logger,
		Store:             store,
		Extractor:         memExtractor,
		Reconciler:        memReconciler,
		Summarizer:        memSummarizer,
		Assembler:         memAssembler,
		Nats:              nc,
		ContextBudget:     envs.ContextBudget,
		ExtractionTimeout: envs.ExtractionTimeout,
		SummaryTimeout:    envs.SummaryTimeout,
		Workers:           envs.ExtractionWorkers,
	})
	if err != nil {
		logger.Fatal("Failed to build engine", "error", err)
	}

	router := bootstrapRouter(logger, memEngine)
	httpServer := &http.Server{
		Addr:    ":" + envs.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server listening", "port", envs.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := memEngine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Background work did not drain in time", "error", err)
	}
}
