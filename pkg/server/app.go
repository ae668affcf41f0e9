package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PerpScope/internal/domain/repository"
	"PerpScope/internal/usecase"
	pkgch "PerpScope/pkg/clickhouse"
	"PerpScope/pkg/config"
	xhttp "PerpScope/pkg/http"
	applogger "PerpScope/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg      *config.Config
	logger   *applogger.Logger
	handler  xhttp.Handler
	workflow *usecase.Workflow
	chClient *pkgch.Client
	events   repository.EventPublisher

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	handler xhttp.Handler,
	workflow *usecase.Workflow,
	chClient *pkgch.Client,
	events repository.EventPublisher,
) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		handler:  handler,
		workflow: workflow,
		chClient: chClient,
		events:   events,
	}
}

// Workflow exposes the refresh workflow, mainly for tests.
func (a *App) Workflow() *usecase.Workflow { return a.workflow }

// Run starts the HTTP server and blocks until interrupted, then shuts
// everything down gracefully.
func (a *App) Run() error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}
	a.logger.Info("perpscope started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	a.logger.Info("shutdown signal", applogger.String("signal", sig.String()))

	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.logger.Error("event publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Error("clickhouse close error", applogger.Error(err))
		}
	}
	a.logger.Info("perpscope stopped")
	return nil
}
