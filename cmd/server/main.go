package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/api"
	"github.com/dgallion1/docanchor/internal/config"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/parser"
	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/pipeline"
	"github.com/dgallion1/docanchor/internal/session"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	ps := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
	stats := matcher.NewStats(cfg.SearchStatsWindow)

	sessions := session.NewStore(session.Config{
		ContextWindow:  cfg.ContextWindow,
		HighlightClass: cfg.HighlightClass,
		Parser:         parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		Matcher: matcher.Config{
			MaxPatternLength:      cfg.MaxPatternLength,
			MatchThreshold:        cfg.MatchThreshold,
			PatternMatchThreshold: cfg.PatternMatchThreshold,
			Stats:                 stats,
		},
		Anchor: anchor.Config{
			PatternMatchThreshold: cfg.PatternMatchThreshold,
			ContextDistanceFactor: anchor.DefaultContextDistanceFactor,
		},
	}, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, sessions, ps, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(sessions, ps, orch, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		ps.Close()
	}()

	log.Info("starting docanchor", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
