// Package websocket attaches a signaling session to each upgraded connection.
package websocket

import (
	"net/http"

	"github.com/camlink/signaling/backend/registry"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultReadBufferSize  = 4096
	defaultWriteBufferSize = 4096
)

type Config struct {
	Logger   *zerolog.Logger
	Registry *registry.Registry
}

// Handler upgrades HTTP requests to websocket signaling sessions. It has no
// listener of its own; the HTTP server mounts it on a route.
type Handler struct {
	logger   zerolog.Logger
	registry *registry.Registry
	upgrader *websocket.Upgrader
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		logger:   cfg.Logger.With().Str("component", "websocket").Logger(),
		registry: cfg.Registry,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  defaultReadBufferSize,
			WriteBufferSize: defaultWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := uuid.New().String()
	logger := h.logger.With().Str("session", id).Logger()
	logger.Debug().Str("remote", clientAddr(r)).Msg("new connection")

	sess := newSession(conn, h.registry, logger)
	go sess.run()
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
