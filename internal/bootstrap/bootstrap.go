// Package bootstrap wires configuration into the concrete stores, backend
// adapter and studio service shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"cinemastudio/internal/adapter/repo"
	"cinemastudio/internal/composer"
	"cinemastudio/internal/db/migrations"
	"cinemastudio/internal/domain"
	"cinemastudio/internal/infra"
	"cinemastudio/internal/providers/backend"
	"cinemastudio/internal/providers/hosted"
	"cinemastudio/internal/providers/nodegraph"
	"cinemastudio/internal/reference"
	"cinemastudio/internal/storage"
	"cinemastudio/internal/studio"
)

// Stores are the Media Store repositories for the configured driver.
type Stores struct {
	Media   domain.MediaRepository
	Uploads domain.UploadRepository
	close   func()
}

// Close releases the underlying connection.
func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStores connects to the configured database and applies pending
// migrations.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	switch cfg.DatabaseDriver {
	case infra.DriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := migrations.MigratePostgres(pool); err != nil {
			pool.Close()
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		return &Stores{
			Media:   repo.NewMediaRepositoryPG(runner, nil),
			Uploads: repo.NewUploadRepositoryPG(runner, nil),
			close:   pool.Close,
		}, nil
	default:
		db, err := infra.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := migrations.MigrateSQLite(db); err != nil {
			db.Close()
			return nil, err
		}
		runner := infra.NewSQLiteRunner(db, logger)
		return &Stores{
			Media:   repo.NewMediaRepositorySQLite(runner, nil),
			Uploads: repo.NewUploadRepositorySQLite(runner, nil),
			close:   func() { _ = db.Close() },
		}, nil
	}
}

// NewAdapter builds the backend adapter selected by BACKEND.
func NewAdapter(cfg *infra.Config, logger *infra.Logger) (backend.Adapter, error) {
	switch cfg.Backend {
	case infra.BackendNodeGraph:
		templates, err := nodegraph.LoadTemplates(cfg.NodeGraphManifest)
		if err != nil {
			return nil, err
		}
		pool, err := nodegraph.NewPool(nodegraph.PoolOptions{
			Options: nodegraph.Options{
				Host:      cfg.NodeGraphHost,
				Logger:    logger,
				Templates: templates,
			},
			Sessions: cfg.NodeGraphSessions,
		})
		if err != nil {
			return nil, err
		}
		return pool, nil
	case infra.BackendHosted:
		client, err := hosted.NewClient(hosted.Options{
			APIKey:         cfg.FalKey,
			BaseURL:        cfg.FalBaseURL,
			TextModel:      cfg.FalTextModel,
			ReferenceModel: cfg.FalRefModel,
			VideoModel:     cfg.FalVideoModel,
			MaxInFlight:    cfg.HostedMaxInFlight,
			Logger:         logger,
			RequestTimeout: cfg.JobTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("backend %q is not supported", cfg.Backend)
	}
}

// Runtime is a fully wired studio.
type Runtime struct {
	Service *studio.Service
	Store   *storage.FileStore
	Stores  *Stores
}

// Close releases the runtime's connections.
func (r *Runtime) Close() {
	if r != nil {
		r.Stores.Close()
	}
}

// NewRuntime wires stores, file storage, resolver, adapter and angle catalog
// into a studio.Service. reg may be nil to skip metrics.
func NewRuntime(ctx context.Context, cfg *infra.Config, logger infra.Logger, reg prometheus.Registerer) (*Runtime, error) {
	catalog, err := composer.LoadCatalog(cfg.AngleCatalogPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	fetchClient := &http.Client{Timeout: cfg.FetchTimeout}
	resolver, err := reference.NewResolver(reference.Options{
		Store:        store,
		HTTPClient:   fetchClient,
		Logger:       &logger,
		FetchTimeout: cfg.FetchTimeout,
		MaxBytes:     cfg.FetchMaxBytes,
	})
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapter(cfg, &logger)
	if err != nil {
		return nil, err
	}
	var observer infra.Observer = infra.NopObserver{}
	if reg != nil {
		prom, err := infra.NewPrometheusObserver("cinemastudio", reg)
		if err != nil {
			return nil, err
		}
		observer = prom
	}

	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc, err := studio.NewService(studio.Deps{
		Adapter:  adapter,
		Media:    stores.Media,
		Uploads:  stores.Uploads,
		Resolver: resolver,
		Store:    store,
		Catalog:  catalog,
		Logger:   &logger,
		Observer: observer,
	}, studio.Options{
		JobTimeout:     cfg.JobTimeout,
		FanoutInterval: cfg.FanoutInterval,
		FetchTimeout:   cfg.FetchTimeout,
	})
	if err != nil {
		stores.Close()
		return nil, err
	}
	logger.Info().
		Str("backend", adapter.Name()).
		Str("policy", adapter.Policy().String()).
		Str("database", cfg.DatabaseDriver).
		Int("angles", len(catalog)).
		Msg("studio wired")
	return &Runtime{Service: svc, Store: store, Stores: stores}, nil
}
