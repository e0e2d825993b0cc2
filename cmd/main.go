package main

import (
	"chat-relay/infrastructure/api"
	"chat-relay/infrastructure/storage"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay and blocks until a signal or a server failure.
// Returning instead of exiting lets every defer (database close) run.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core: registry, broadcaster, protocol
	monitor := observability.NewMonitor(log)
	store := storage.NewStore(db, log, config.LimitMessages)
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry, monitor)
	chatService := services.NewChatService(log, store, registry, broadcaster, monitor, config.TrustClientTimestamp)
	directory := services.NewChatDirectory(log, store)

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Transport & Gateway
	wsServer := ws.NewServer(log, chatService, monitor, ws.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteTimeout:         config.WriteTimeout,
		PingInterval:         config.PingInterval,
		AllowedOrigins:       config.Origins(),
		InsecureSkipVerify:   config.WSInsecureSkipVerify,
	})
	health := func() observability.Stats {
		stats := monitor.Snapshot(registry.Count())
		stats.Connections = wsServer.Count()
		return stats
	}
	router := api.NewRouter(log, directory, health, wsServer.Handle)
	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if config.DebugPort != nil {
		inspector := internal.NewInspector(db, log, internal.ChatRowMapper, func() map[string]any {
			stats := health()
			return map[string]any{
				"connections": stats.Connections,
				"sessions":    stats.Sessions,
				"messages":    stats.MessagesPersisted,
			}
		})
		internal.StartDebugServer(ctx, log, *config.DebugPort, inspector)
	}

	supervisor := workers.NewSupervisor(log)
	supervisor.Add(workers.NewStatsReporter(log, monitor, registry.Count, config.MetricInterval))
	go supervisor.Run(ctx)

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat relay", "address", config.Address(), "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 6. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 7. Final Cleanup: stop accepting, then say goodbye to live connections
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown incomplete", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("websocket connections still open at shutdown", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
