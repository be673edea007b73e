package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-sync/auth"
	"chat-sync/infrastructure/rest"
	"chat-sync/infrastructure/ws"
	"chat-sync/moderation"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the client lifecycle, and
// centralizes error reporting, so every defer executes before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Identity
	identity, err := auth.ParseIdentity(config.AccessToken, []byte(config.JWTSecret))
	if err != nil {
		return fmt.Errorf("access token rejected: %w", err)
	}
	log.Info("Authenticated", "user", identity.UserID)

	// 3. Local storage (BadgerDB cache + Bluge search index)
	db, err := badger.Open(badger.DefaultOptions(config.CacheFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("cache opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing message cache...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.IndexFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	// 4. Backend transports
	backend := rest.NewBackend(log, config.BackendURL, config.AccessToken)
	bus := ws.NewBus(log, config.EventsURL, config.AccessToken)
	defer bus.Close()

	// 5. Session wiring
	moderator, err := moderation.NewModerator(config.FlaggedWords, config.MaskCharacter)
	if err != nil {
		return fmt.Errorf("moderation setup: %w", err)
	}

	session := runtime.NewSession(log, backend, bus, identity, config.HistoryLimit, config.DebounceWindow)
	defer session.Close()
	session.UseCache(repositories.NewMessageCache(db, log, config.CacheLimit))
	session.AddSinks(search.NewMessageIndex(indexWriter))
	session.UseModerator(&moderator)

	feed := runtime.NewNotificationFeed(log, bus, backend)
	feed.UseModerator(&moderator)
	defer feed.Close()

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Supervised workers: event transport + telemetry
	sup := workers.NewSupervisor(log)
	sup.Add(bus, workers.NewTelemetryWorker(log, session, config.TelemetryInterval))
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 8. Start the session
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("session failed to start: %w", err)
	}
	if err := feed.Open(ctx, identity.UserID); err != nil {
		log.Warn("Notification feed unavailable", "error", err)
	}

	// 9. Wait for Stop
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
