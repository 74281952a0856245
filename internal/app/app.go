package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/pistation/internal/controllers"
	"github.com/chrissnell/pistation/internal/log"
	"github.com/chrissnell/pistation/internal/managers"
	"github.com/chrissnell/pistation/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	watcher := config.NewWatcher(cfg.Station.CredentialsFile, log.Named("config"))

	// Initialize the storage manager and start forwarding log lines to it
	storageManager := managers.NewStorageManager(ctx, &wg, cfg, watcher)
	log.SetBackend(storageManager.Store)
	defer func() {
		log.SetBackend(nil)
		storageManager.Close()
	}()

	st, err := managers.NewStation(cfg, watcher, storageManager.Store)
	if err != nil {
		return err
	}

	svc := &controllers.Services{
		StationName: cfg.Station.Name,
		Credentials: watcher,
		Health:      storageManager.Store,
		Open:        storageManager.Open,
		Logger:      log.Named("controllers"),
	}

	// Initialize the controller manager
	cm, err := managers.NewControllerManager(ctx, &wg, cfg, svc)
	if err != nil {
		return err
	}
	err = cm.StartControllers()
	if err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		st.Run(ctx)
	}()

	a.logger.Infow("Application started successfully", "station", cfg.Station.Name, "window", cfg.Station.Window, "tick", cfg.Station.Tick)

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
