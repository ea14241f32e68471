// Package cli implements the workflowctl command line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/songzhibin97/workflow-steps/config"
	"github.com/songzhibin97/workflow-steps/events"
	"github.com/songzhibin97/workflow-steps/logging"
	"github.com/songzhibin97/workflow-steps/rules"
	"github.com/songzhibin97/workflow-steps/storage"
	"github.com/songzhibin97/workflow-steps/workflow"
)

// App holds the dependencies shared by every command.
type App struct {
	Config *config.Config
	Engine *workflow.WorkflowEngine
	Logger *slog.Logger

	closeStorage func() error
}

// NewApp opens the configured storage backend and builds the engine on it.
func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.WithModule("workflowctl")

	store, closeStorage, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := workflow.NewWorkflowEngine(
		workflow.NewIDGenerator(cfg.Engine.NodeID),
		store,
		rules.NewExprEvaluator(),
		workflow.WithLogger(logger),
		workflow.WithEventBus(events.NewEventBus(
			events.WithBufferSize(cfg.Engine.EventBuffer),
			events.WithLogger(logger),
		)),
		workflow.WithConcurrentBranches(cfg.Engine.ConcurrentBranches),
		workflow.WithMaxDepth(cfg.Engine.MaxDepth),
	)
	if err != nil {
		_ = closeStorage()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &App{
		Config:       cfg,
		Engine:       engine,
		Logger:       logger,
		closeStorage: closeStorage,
	}, nil
}

func openStorage(cfg *config.Config) (storage.Storage, func() error, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		store, err := storage.NewRedisStorage(cfg.RedisOptions())
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return storage.NewMemoryStorage(), func() error { return nil }, nil
	}
}

// Close stops the engine and releases the storage backend.
func (a *App) Close(ctx context.Context) error {
	if err := a.Engine.Stop(ctx); err != nil {
		return err
	}
	return a.closeStorage()
}
