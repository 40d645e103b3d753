// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/classify"
	"github.com/ampscan/ampscan/internal/clock/system"
	"github.com/ampscan/ampscan/internal/config"
	"github.com/ampscan/ampscan/internal/content"
	contentmem "github.com/ampscan/ampscan/internal/content/memory"
	contentpg "github.com/ampscan/ampscan/internal/content/postgres"
	"github.com/ampscan/ampscan/internal/id/uuid"
	"github.com/ampscan/ampscan/internal/logging"
	"github.com/ampscan/ampscan/internal/metrics"
	"github.com/ampscan/ampscan/internal/nonce"
	"github.com/ampscan/ampscan/internal/oracle"
	pubmem "github.com/ampscan/ampscan/internal/publisher/memory"
	pubgcp "github.com/ampscan/ampscan/internal/publisher/pubsub"
	"github.com/ampscan/ampscan/internal/scan"
	storagegcs "github.com/ampscan/ampscan/internal/storage/gcs"
	storagelocal "github.com/ampscan/ampscan/internal/storage/local"
	storagemem "github.com/ampscan/ampscan/internal/storage/memory"
	storemem "github.com/ampscan/ampscan/internal/store/memory"
	storepg "github.com/ampscan/ampscan/internal/store/postgres"
)

// App holds the shared, long-lived services of the scan service. It is
// initialized once at startup and passed to the components that need it.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Clock  scan.Clock
	IDs    scan.IDGenerator

	Index           content.SiteIndex
	KV              scan.KV
	Classifications scan.ClassificationStore
	Reports         scan.ReportCache
	Blobs           scan.BlobStore
	Publisher       scan.Publisher
	Nonce           *nonce.Generator

	Oracle     scan.Oracle
	Classifier scan.Classifier
	Coord      *scan.Coordinator
	Runner     *scan.Runner
	Scheduler  *scan.Scheduler

	pool     *pgxpool.Pool
	renderer oracle.Renderer
	pub      *pubgcp.Publisher
}

// New builds the App from configuration, failing fast when any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.NewUUIDGenerator(),
	}

	if err := a.initStores(ctx); err != nil {
		return nil, err
	}
	if err := a.initIndex(); err != nil {
		return nil, err
	}
	if err := a.initBlobs(ctx); err != nil {
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		return nil, err
	}
	if err := a.initScanServices(); err != nil {
		return nil, err
	}

	logger.Info("application services initialized",
		zap.String("scan_backend", cfg.Scan.Backend),
		zap.String("site_backend", cfg.Site.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	return a, nil
}

func (a *App) initStores(ctx context.Context) error {
	switch a.Config.Scan.Backend {
	case "postgres":
		pool, err := storepg.NewPool(ctx, a.Config.DB)
		if err != nil {
			return fmt.Errorf("init postgres pool: %w", err)
		}
		a.pool = pool
		a.KV = storepg.NewKV(pool, a.Clock)
		a.Classifications = storepg.NewClassificationStore(pool, a.Clock)
		a.Reports = storepg.NewReportCache(pool)
	default:
		a.KV = storemem.NewKV(a.Clock)
		a.Classifications = storemem.NewClassificationStore()
		a.Reports = storemem.NewReportCache()
	}
	return nil
}

func (a *App) initIndex() error {
	switch a.Config.Site.Backend {
	case "postgres":
		if a.pool == nil {
			return fmt.Errorf("site.backend postgres requires scan.backend postgres")
		}
		a.Index = contentpg.NewIndex(a.pool)
	default:
		if a.Config.Site.HomeURL == "" {
			return fmt.Errorf("site.home_url must be set for the memory site backend")
		}
		a.Index = contentmem.NewIndex(content.Settings{
			HomeURL:     a.Config.Site.HomeURL,
			ShowOnFront: a.Config.Site.ShowOnFront,
		})
	}
	return nil
}

func (a *App) initBlobs(ctx context.Context) error {
	switch a.Config.Storage.Backend {
	case "none":
		a.Blobs = nil
	case "memory":
		a.Blobs = storagemem.New()
	case "local":
		store, err := storagelocal.New(storagelocal.Config{BaseDir: a.Config.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.Blobs = store
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		store, err := storagegcs.New(client, storagegcs.Config{Bucket: a.Config.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.Blobs = store
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if !a.Config.PubSub.Enabled {
		a.Publisher = pubmem.New()
		return nil
	}
	client, err := gpubsub.NewClient(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := pubgcp.New(client)
	if err != nil {
		return fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.pub = pub
	a.Publisher = pub
	return nil
}

func (a *App) initScanServices() error {
	if a.Config.Nonce.Secret != "" {
		a.Nonce = nonce.New([]byte(a.Config.Nonce.Secret), a.Clock, a.Config.Nonce.TTL)
	}

	fetcher, err := oracle.NewCollyFetcher(a.Config.Oracle, a.Logger)
	if err != nil {
		return fmt.Errorf("init fetcher: %w", err)
	}

	opts := []oracle.Option{}
	if a.Blobs != nil {
		opts = append(opts, oracle.WithBlobStore(a.Blobs))
	}
	if a.Nonce != nil {
		opts = append(opts, oracle.WithNonce(a.Nonce.Generate))
	}
	if a.Config.Oracle.UseJS {
		renderer, rerr := oracle.NewChromedpRenderer(a.Config.Oracle, a.Logger)
		if rerr != nil {
			return fmt.Errorf("init renderer: %w", rerr)
		}
		a.renderer = renderer
		opts = append(opts, oracle.WithRenderer(renderer))
	}
	a.Oracle = oracle.New(a.Config.Oracle, fetcher, a.Reports, a.Clock, a.Logger, opts...)

	autoAccept := a.Config.Scan.AutoAccept
	a.Classifier = classify.New(a.Classifications, func() bool { return autoAccept }, a.Logger)

	a.Coord = scan.NewCoordinator(a.KV, a.Config.Scan.LockTTL, a.Logger)

	newScanner := func(runID string) *scan.Scanner {
		return scan.NewScanner(a.Oracle, a.Classifier, a.Logger,
			scan.WithPublisher(a.Publisher, a.Config.Scan.Topic),
			scan.WithRunID(runID),
		)
	}
	a.Runner = scan.NewRunner(a.Index, a.Clock, a.KV, a.Coord, a.IDs, newScanner, a.Logger)
	a.Scheduler = scan.NewScheduler(a.Index, a.Clock, a.KV, a.Coord,
		func() *scan.Scanner { return newScanner("") },
		a.Config.Scan.CronStride, a.Logger)
	return nil
}

// HomeURL resolves the site home URL from the index settings.
func (a *App) HomeURL(ctx context.Context) (string, error) {
	settings, err := a.Index.Settings(ctx)
	if err != nil {
		return "", fmt.Errorf("load site settings: %w", err)
	}
	return settings.HomeURL, nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close(ctx context.Context) {
	if a.renderer != nil {
		if err := a.renderer.Close(ctx); err != nil {
			a.Logger.Warn("close renderer failed", zap.Error(err))
		}
	}
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.Logger.Warn("close publisher failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	// Flush buffered log entries before exit; stderr sync errors are benign.
	_ = a.Logger.Sync()
}
