// Package server wires the DataKeeper services together and runs the HTTP
// and gRPC transports until the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/datakeeper/internal/dbx"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/dmitrijs2005/datakeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/datakeeper/internal/server/catalog"
	"github.com/dmitrijs2005/datakeeper/internal/server/config"
	"github.com/dmitrijs2005/datakeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/datakeeper/internal/server/jobs"
	"github.com/dmitrijs2005/datakeeper/internal/server/keyring"
	"github.com/dmitrijs2005/datakeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/datakeeper/internal/server/services"

	gs "github.com/dmitrijs2005/datakeeper/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	resolver *catalog.Resolver
	backend  *api.Backend
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, dialect, err := dbx.Open(c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewSQLRepositoryManager(dialect)
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	resolver, err := catalog.NewResolver(ctx, catalogSource(c, db, dialect), c.CatalogTTL, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: %w", err)
	}

	ring, err := keyring.New(c.KeyRing, c.CurrentKeyVersion)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("key ring: %w", err)
	}

	blobs, err := blobStore(ctx, c, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	var dispatcher jobs.Dispatcher = jobs.Disabled{}
	if c.JobDispatchURL != "" {
		dispatcher = jobs.NewHTTPDispatcher(c.JobDispatchURL, c.JobDispatchRPS, c.JobDispatchRetries, nil, logger)
	}

	backend := &api.Backend{
		Data:  services.NewDataService(db, rm, resolver, c, logger),
		Files: services.NewFileService(db, rm, resolver, ring, blobs, c, logger),
		Jobs:  dispatcher,
	}

	return &App{config: c, logger: logger, db: db, resolver: resolver, backend: backend}, nil
}

func catalogSource(c *config.Config, db *sql.DB, dialect dbx.Dialect) catalog.Source {
	if c.CatalogSource == config.CatalogSourcePostgres {
		return catalog.DBSource{DB: db, Dialect: dialect}
	}
	return catalog.FileSource{Path: c.CatalogPath}
}

func blobStore(ctx context.Context, c *config.Config, db *sql.DB, rm repomanager.RepositoryManager) (blobstore.Store, error) {
	if c.BlobBackend == config.BlobBackendDB {
		return blobstore.NewDBStore(rm.Blobs(db)), nil
	}
	return blobstore.NewS3Store(ctx, blobstore.S3Config{
		Region:       c.S3Region,
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
	})
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	go func() {
		for sig := range sigs {
			if sig == syscall.SIGHUP {
				if err := app.resolver.Reload(ctx); err != nil {
					app.logger.Error(ctx, "catalog reload failed", "error", err)
				}
				continue
			}
			signal.Stop(sigs)
			cancelFunc()
			return
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.backend, app.config.SecretKey, app.config.RequestTimeout)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.backend, app.config.SecretKey, app.config.RequestTimeout)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	if app.config.WatchCatalog && app.config.CatalogSource == config.CatalogSourceFile {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := catalog.Watch(ctx, app.config.CatalogPath, app.resolver, app.logger); err != nil {
				app.logger.Warn(ctx, "catalog watch stopped", "error", err)
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.WithoutCancel(ctx), "db close", "error", err)
	}
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
}
