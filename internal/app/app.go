// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sitefeed/internal/cache"
	"sitefeed/internal/config"
	"sitefeed/internal/metrics"
	"sitefeed/internal/model"
	"sitefeed/internal/pipeline"
	"sitefeed/internal/site"
	"sitefeed/internal/storage"
	"sitefeed/internal/transport"
)

// App holds the long-lived components shared by one process.
type App struct {
	Profile  *site.Profile
	Pipeline *pipeline.Pipeline
	Cache    *cache.Keyed[model.FeedItem]
	Registry *prometheus.Registry

	store storage.Store
}

// New builds the pipeline described by cfg. Close releases the cache store.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	profile, err := site.Load(cfg.SiteProfile)
	if err != nil {
		return nil, fmt.Errorf("load site profile: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ready, err := transport.ParseReady(cfg.BrowserReady)
	if err != nil {
		return nil, err
	}
	tr, err := transport.New(transport.Config{
		Mode:            transport.Mode(cfg.FetchMode),
		BrowserEndpoint: cfg.BrowserEndpoint,
		Direct: transport.DirectConfig{
			UserAgent:      cfg.UserAgent,
			AcceptLanguage: profile.Language,
			Timeout:        cfg.FetchTimeout,
			Retries:        cfg.FetchRetries,
			RatePerHost:    cfg.FetchRate,
		},
		Rendered: transport.RenderedConfig{
			Timeout: 2 * cfg.FetchTimeout,
			Ready:   ready,
		},
	}, nil, log, m)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// A nil storage.Store must stay a nil cache.Store.
	var second cache.Store
	if store != nil {
		second = store
	}
	c := cache.New[model.FeedItem](cache.Config{TTL: cfg.CacheTTL, Size: cfg.CacheSize}, second, log, m)

	p := pipeline.New(profile, tr, c, pipeline.Config{
		Concurrency:  cfg.PipelineConcurrency,
		DefaultLimit: cfg.FeedDefaultLimit,
		MaxLimit:     cfg.FeedMaxLimit,
	}, log, m)

	log.Info("pipeline ready",
		"site", profile.Name,
		"listing_url", profile.ListingURL,
		"transport", tr.Name(),
		"cache_backend", cfg.CacheBackend)

	return &App{Profile: profile, Pipeline: p, Cache: c, Registry: reg, store: store}, nil
}

// Close releases the shared cache store, if any.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		if dir := filepath.Dir(cfg.CacheSQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", dir, err)
			}
		}
		s, err := storage.NewSQLite(ctx, cfg.CacheSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache %s: %w", cfg.CacheSQLitePath, err)
		}
		if n, err := s.DeleteExpired(ctx); err != nil {
			log.Warn("purge expired cache entries", "error", err)
		} else if n > 0 {
			log.Info("purged expired cache entries", "count", n)
		}
		return s, nil
	case config.CacheRedis:
		s, err := storage.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return s, nil
	case config.CacheMemory, "":
		return nil, nil
	}
	return nil, errors.New("unknown cache backend " + cfg.CacheBackend)
}
