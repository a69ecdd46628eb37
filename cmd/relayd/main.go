// Package main provides the relay daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apihttp "github.com/ruohki/krelez/internal/api/http"
	"github.com/ruohki/krelez/internal/app/extractor"
	"github.com/ruohki/krelez/internal/infra/config"
	"github.com/ruohki/krelez/internal/infra/logger"
)

var (
	app        = kingpin.New("krelez-relayd", "krelez metadata relay daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/krelez.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One extractor per channel that relays an actual stream. Channels
	// without an upstream stream URL still get API routes, they just never
	// produce metadata of their own.
	channels := make(map[string]*extractor.Channel, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.Upstream.StreamURL == "" {
			zlog.Warn().Msgf("Channel %s has no upstream stream URL, metadata extraction disabled", ch.Name)
			continue
		}
		c := extractor.NewChannel(ch.Name, ch.Upstream.StreamURL)
		channels[ch.Name] = c
		go c.Run(ctx)
	}

	srv := apihttp.NewServer(cfg, channels)

	// h2c allows HTTP/2 without TLS, which matters behind a terminating proxy
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(srv.Handler(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Stop the extractors before draining the HTTP server so live
	// subscribers see their streams end.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}
