package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/citizenly/autopilot/internal/capability"
	"github.com/citizenly/autopilot/internal/config"
	"github.com/citizenly/autopilot/internal/confirmation"
	auditrepo "github.com/citizenly/autopilot/internal/confirmation/repositoryimpl"
	"github.com/citizenly/autopilot/internal/engine"
	"github.com/citizenly/autopilot/internal/eventbus"
	"github.com/citizenly/autopilot/internal/executor"
	"github.com/citizenly/autopilot/internal/memory"
	memoryrepo "github.com/citizenly/autopilot/internal/memory/repositoryimpl"
	"github.com/citizenly/autopilot/internal/policy"
	"github.com/citizenly/autopilot/internal/task"
	taskrepo "github.com/citizenly/autopilot/internal/task/repositoryimpl"
	"github.com/citizenly/autopilot/pkg/clog"
	"github.com/citizenly/autopilot/pkg/storage"

	server "github.com/citizenly/autopilot/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	defaultLevel, err := policy.ParseLevel(env.DefaultAutomationLevel)
	if err != nil {
		slog.Error("invalid default automation level", "error", err)
		os.Exit(1)
	}

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup capability registry
	registry := capability.NewRegistry()
	if env.CapabilityFile != "" {
		caps, err := capability.LoadFile(env.CapabilityFile)
		if err != nil {
			slog.Error("failed to load capability file", "path", env.CapabilityFile, "error", err)
			os.Exit(1)
		}
		registry.Apply(caps)
	}

	// Setup repositories and stores
	taskStore := task.NewStore(taskrepo.NewYAMLRepository(store))
	if err := taskStore.Load(context.Background()); err != nil {
		slog.Error("failed to load task queues", "error", err)
		os.Exit(1)
	}
	memories := memory.NewStore(memoryrepo.NewYAMLRepository(store))

	// Setup engine
	factory := task.NewFactory(memories)
	exec := executor.NewHTTPExecutor(env.ExecutorURL, env.ExecutorTimeout)
	adapter := executor.NewAdapter(exec, registry, taskStore, memories, bus, env.RetryDelay)
	confirmer := confirmation.NewWorkflow(taskStore, auditrepo.NewYAMLRepository(store), bus)
	eng := engine.New(factory, taskStore, registry, memories, adapter, confirmer, bus, defaultLevel)

	srv := server.NewServer(env, eng, taskStore, registry, memories, bus)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if env.CapabilityFile != "" {
		watcher := capability.NewWatcher(env.CapabilityFile, registry)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("capability watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	// Wait for in-flight task executions to settle.
	eng.Wait()
}
