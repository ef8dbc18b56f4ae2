// Package http serves the whole single-port surface: the local web viewer's
// static assets, cached TURN credentials, a health probe, and the websocket
// signaling endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	// CredentialSource yields cached TURN credentials, or nil when none are
	// available. It never fails.
	CredentialSource interface {
		Credentials(ctx context.Context) json.RawMessage
	}

	// RoomCounter reports the number of live rooms.
	RoomCounter interface {
		Count() int
	}

	Config struct {
		Logger      *zerolog.Logger
		Credentials CredentialSource
		Rooms       RoomCounter
		Signaling   http.Handler
		AssetDir    string
		ListenAddr  string
	}

	Server struct {
		logger zerolog.Logger
		creds  CredentialSource
		rooms  RoomCounter
		*http.Server
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "http-server").Logger(),
		creds:  cfg.Credentials,
		rooms:  cfg.Rooms,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api/turn", srv.turnCredentials)
	r.Get("/health", srv.health)
	r.Method(http.MethodGet, "/ws", cfg.Signaling)
	r.Handle("/*", newAssetHandler(cfg.AssetDir, &srv.logger))

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func (srv *Server) turnCredentials(w http.ResponseWriter, r *http.Request) {
	creds := srv.creds.Credentials(r.Context())
	if creds == nil {
		creds = json.RawMessage("{}")
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeBytes(w, "application/json", creds, &srv.logger)
}

func (srv *Server) health(w http.ResponseWriter, _ *http.Request) {
	b, err := json.Marshal(struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}{Status: "ok", Rooms: srv.rooms.Count()})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, "application/json", b, &srv.logger)
}

func writeBytes(w http.ResponseWriter, contentType string, b []byte, logger *zerolog.Logger) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		logger.Error().Err(err).Msg("failed to write response")
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
