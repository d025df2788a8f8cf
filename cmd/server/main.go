package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/roomcast/internal/server"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the configuration, hub and HTTP server, and blocks until a
// signal arrives or the listener fails.
func run() error {
	loaded, err := server.LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	config := server.SetConfig(loaded)

	log := logs.GetLoggerFromString(config.LogLevel)
	slog.SetDefault(log)

	hub := server.NewHub(log, server.NewMetrics())
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		_ = hub.Shutdown(config.ShutdownTimeout)
		return err
	}

	if err := server.ShutdownServer(httpServer, config.ShutdownTimeout, log); err != nil {
		log.Warn("HTTP server did not shut down cleanly", "err", err)
	}
	if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
		return fmt.Errorf("hub shutdown: %w", err)
	}

	log.Info("Program stopped cleanly")
	return nil
}
