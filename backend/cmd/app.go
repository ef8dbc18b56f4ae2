package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/camlink/signaling/backend/registry"
	httpServer "github.com/camlink/signaling/backend/server/http"
	websocketHandler "github.com/camlink/signaling/backend/server/websocket"
	"github.com/camlink/signaling/backend/turn"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		listenAddr   = fs.StringP("listen-addr", "a", defaultListenAddr(), "listen address for signaling, assets and api")
		assetDir     = fs.StringP("asset-dir", "d", "./public", "directory with the web viewer's static files")
		turnEndpoint = fs.StringP("turn-endpoint", "t", "", "upstream TURN credential endpoint (empty for default)")
		logLevel     = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	reg := registry.New(registry.Config{Logger: &logger})
	cache := turn.New(turn.Config{
		Logger:   &logger,
		Endpoint: *turnEndpoint,
	})
	signaling := websocketHandler.NewHandler(websocketHandler.Config{
		Logger:   &logger,
		Registry: reg,
	})
	srv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		Credentials: cache,
		Rooms:       reg,
		Signaling:   signaling,
		AssetDir:    *assetDir,
		ListenAddr:  *listenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 1)
	)
	wg.Add(1)
	go srv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

// defaultListenAddr honors the PORT environment variable and binds all
// interfaces.
func defaultListenAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}
