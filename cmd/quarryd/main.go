// Command quarryd serves the ingestion and retrieval API over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	quarry "github.com/quarrydocs/quarry"
	"github.com/quarrydocs/quarry/chunk"
	"github.com/quarrydocs/quarry/internal/config"
	"github.com/quarrydocs/quarry/internal/httpapi"
	"github.com/quarrydocs/quarry/observer"
	"github.com/quarrydocs/quarry/provider/openai"
	"github.com/quarrydocs/quarry/quality"
	"github.com/quarrydocs/quarry/store/postgres"
	"github.com/quarrydocs/quarry/store/qdrantindex"
	"github.com/quarrydocs/quarry/store/sqlite"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("QUARRY_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("quarryd exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Primary store.
	var store quarry.Store
	switch cfg.Store.Backend {
	case "", "sqlite":
		store = sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		store = postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// Optional Qdrant mirror for vector search.
	var keyword quarry.KeywordSearcher
	if cfg.Qdrant.Enabled {
		index, err := qdrantindex.New(cfg.Qdrant.URL,
			qdrantindex.WithCollection(cfg.Qdrant.Collection),
			qdrantindex.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		// The mirror hides the primary's keyword capability behind the Store
		// interface, so hand it to the searcher explicitly.
		if ks, ok := store.(quarry.KeywordSearcher); ok {
			keyword = ks
		}
		store = qdrantindex.NewMirrored(store, index, cfg.Embedding.Dimensions)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	// Observability is set up before the pipeline so wrapped components are
	// the ones that get wired in.
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("observer init: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("observer shutdown", "err", err)
			}
		}()
	}

	var embedding quarry.EmbeddingProvider = openai.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions,
		openai.WithEndpoint(cfg.Embedding.Endpoint))
	if inst != nil {
		embedding = observer.WrapEmbedding(embedding, cfg.Embedding.Model, inst)
	}

	pipeline := chunk.NewPipeline(
		chunk.WithChunkerOptions(
			chunk.WithMaxChars(cfg.Chunking.MaxSectionChars),
			chunk.WithOverlapChars(cfg.Chunking.OverlapChars),
			chunk.WithMinSlideChars(cfg.Chunking.MinSlideChars),
			chunk.WithRowsPerGroup(cfg.Chunking.RowsPerGroup),
		),
		chunk.WithFixer(quality.NewFixer(quality.WithFixAnalyzer(quality.NewAnalyzer(
			quality.WithMinChars(cfg.Quality.MinChars),
			quality.WithMaxChars(cfg.Quality.MaxChars),
		)))),
		chunk.WithPipelineLogger(logger),
	)

	searcherOpts := []quarry.SearcherOption{quarry.WithLogger(logger)}
	if keyword != nil {
		searcherOpts = append(searcherOpts, quarry.WithKeywordSearcher(keyword))
	}

	var searcher quarry.Searcher = quarry.NewHybridSearcher(store, embedding, searcherOpts...)
	var ingestor httpapi.Ingestor = chunk.NewIngestor(store, embedding,
		chunk.WithPipeline(pipeline), chunk.WithIngestLogger(logger))
	if inst != nil {
		searcher = observer.WrapSearcher(searcher, inst)
		ingestor = observer.WrapIngestor(ingestor, inst)
	}

	api := httpapi.NewServer(store, ingestor, searcher, httpapi.WithLogger(logger))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "store", cfg.Store.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
