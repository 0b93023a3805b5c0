package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/locus-lens/locus/internal/catalog"
	"github.com/locus-lens/locus/internal/cataloging"
	"github.com/locus-lens/locus/internal/classifier"
	"github.com/locus-lens/locus/internal/config"
	"github.com/locus-lens/locus/internal/detectors"
	"github.com/locus-lens/locus/internal/fusion"
	"github.com/locus-lens/locus/internal/index"
	"github.com/locus-lens/locus/internal/inference"
	"github.com/locus-lens/locus/internal/isolation"
	"github.com/locus-lens/locus/internal/search"
	"github.com/locus-lens/locus/internal/storage"
)

// app holds the pipeline shared by serve and ingest
type app struct {
	engine   *fusion.Engine
	pipeline *isolation.Pipeline
	index    index.Index
	search   *search.Service
	ingestor *catalog.Ingestor
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client := inference.New(cfg.Inference.URL, cfg.Inference.Timeout)
	if err := client.CheckHealth(ctx); err != nil {
		slog.Warn("Model server health check failed", "url", cfg.Inference.URL, "err", err)
	} else {
		slog.Info("Model server healthy", "url", cfg.Inference.URL)
	}

	clf, err := classifier.New(ctx, client, client, cfg.Classifier.Labels, cfg.Classifier.LogitScale)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	if clf.Dimension() != cfg.Index.Dimension {
		return nil, fmt.Errorf("%w: label embeddings have %d dimensions, index expects %d",
			classifier.ErrDimensionMismatch, clf.Dimension(), cfg.Index.Dimension)
	}

	registry, err := detectors.Build(client, cfg.Detection.Detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build detectors: %w", err)
	}

	engine := fusion.NewEngine(registry, clf.Classify, fusion.Options{
		IoUThreshold:      cfg.Detection.IoUThreshold,
		FallbackThreshold: cfg.Detection.FallbackThreshold,
	})

	pipeline := isolation.NewPipeline(newRemover(cfg.Isolation, client), client, clf, isolation.Options{
		MaxSide:           cfg.Isolation.MaxSide,
		CategoryThreshold: cfg.Isolation.CategoryThreshold,
		Dimension:         cfg.Index.Dimension,
	})

	idx, err := newIndex(cfg.Index)
	if err != nil {
		return nil, err
	}

	ingestor, err := newIngestor(cfg, pipeline, idx)
	if err != nil {
		idx.Close()
		return nil, err
	}

	return &app{
		engine:   engine,
		pipeline: pipeline,
		index:    idx,
		search:   search.NewService(idx, pipeline, cfg.Index.Limit),
		ingestor: ingestor,
	}, nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		slog.Warn("Unable to close index", "err", err)
	}
}

func newRemover(c config.IsolationConfig, client *inference.Client) isolation.BackgroundRemover {
	if c.Remover == "colorkey" {
		r := isolation.NewColorKeyRemover()
		if c.Tolerance > 0 {
			r.Tolerance = c.Tolerance
		}
		if c.Feather >= 0 {
			r.Feather = c.Feather
		}
		return r
	}
	return client
}

func newIndex(c config.IndexConfig) (index.Index, error) {
	if c.Backend == "memory" {
		slog.Warn("Using in-memory index, catalog is lost on exit")
		return index.NewMemory(c.Dimension), nil
	}

	q, err := index.NewQdrant(index.QdrantConfig{
		Host:       c.Host,
		Port:       c.Port,
		APIKey:     c.APIKey,
		UseTLS:     c.UseTLS,
		Collection: c.Collection,
		Dimension:  c.Dimension,
	})
	if err != nil {
		return nil, err
	}
	return index.WithTimeout(q, c.Timeout), nil
}

func newIngestor(cfg *config.Config, pipeline *isolation.Pipeline, idx index.Index) (*catalog.Ingestor, error) {
	directory, err := catalog.LoadDirectory(cfg.Ingest.MallDirectory)
	if err != nil {
		return nil, err
	}

	opts := catalog.Options{
		ImageDir:     cfg.Ingest.ImageDir,
		Directory:    directory,
		Mall:         cfg.Ingest.Mall,
		DefaultLevel: cfg.Ingest.DefaultLevel,
	}

	if cfg.Ingest.Provider != "" {
		svc, err := cataloging.NewService(cfg.Ingest.Provider, cfg.Ingest.Model, cfg.Ingest.Temperature, cfg.Classifier.Labels)
		if err != nil {
			return nil, err
		}
		slog.Info("Category fallback enabled", "provider", svc.Provider(), "model", svc.Model())
		opts.Categorizer = svc.Categorize
	}

	return catalog.NewIngestor(pipeline, idx, opts), nil
}

func newCache(ctx context.Context, c config.CacheConfig) (storage.DetectionStore, error) {
	switch c.Backend {
	case "none":
		return storage.NopStore{}, nil
	case "redis":
		store := storage.NewRedisStore(storage.RedisConfig{
			Addr:     c.Addr,
			Password: c.Password,
			DB:       c.DB,
			TTL:      c.TTL,
		})
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.Addr, err)
		}
		slog.Info("Detection cache", "backend", "redis", "addr", c.Addr, "ttl", c.TTL)
		return store, nil
	default:
		slog.Info("Detection cache", "backend", "memory", "ttl", c.TTL)
		return storage.NewMemoryStore(c.TTL), nil
	}
}
