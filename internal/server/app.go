// Package server wires the history server: configuration, storage backend,
// optional S3 archive and the HTTP API, with signal-driven graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gpstracker/internal/logging"
	"github.com/dmitrijs2005/gpstracker/internal/server/archive"
	"github.com/dmitrijs2005/gpstracker/internal/server/config"
	"github.com/dmitrijs2005/gpstracker/internal/server/httpserver"
	"github.com/dmitrijs2005/gpstracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gpstracker/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	server      *httpserver.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, logging.Options{Backend: c.LogBackend, Level: c.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	rm, err := repomanager.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	var archiver services.Archiver
	if c.ArchiveEnabled() {
		a, err := archive.NewS3Archiver(ctx, c)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		archiver = a
	}

	svc := services.NewLocationService(rm, archiver, c, logger)
	router := httpserver.NewRouter(httpserver.RouterConfig{
		APIPrefix: c.APIPrefix,
		StaticDir: c.StaticDir,
		Middleware: httpserver.MiddlewareConfig{
			CORSAllowedOrigins: c.CORSAllowedOrigins,
			RateLimitRequests:  c.RateLimitRequests,
			RateLimitWindow:    c.RateLimitWindow,
			RequestTimeout:     c.RequestTimeout,
		},
	}, httpserver.NewHandler(svc, logger), logger)

	return &App{
		config:      c,
		logger:      logger,
		repomanager: rm,
		server:      httpserver.NewHTTPServer(c.EndpointAddrHTTP, router, logger, c.ShutdownTimeout),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.repomanager.Name(), "archive", app.config.ArchiveEnabled())

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.repomanager.Close(); err != nil {
		app.logger.Warn(ctx, "storage close", "err", err)
	}
	app.logger.Info(ctx, "App stopped")
	return runErr
}
