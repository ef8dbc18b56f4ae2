package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/camlink/signaling/backend/model"
	"github.com/camlink/signaling/backend/registry"
	"github.com/davecgh/go-spew/spew"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// 64 KiB is plenty for SDP bodies.
	defaultMaxMessageSize = 64 * 1024
	defaultWriteDeadline  = 5 * time.Second

	sendQueueSize = 32
)

type role int

const (
	roleUnjoined role = iota
	roleCreator
	roleViewer
)

// Session owns one websocket connection and drives its state machine:
// Unjoined -> Creator{room} | Viewer{room}, terminal on disconnect. role and
// room are touched only by the reader goroutine.
type Session struct {
	conn   *websocket.Conn
	reg    *registry.Registry
	logger zerolog.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	role role
	room string
}

func newSession(conn *websocket.Conn, reg *registry.Registry, logger zerolog.Logger) *Session {
	return &Session{
		conn:   conn,
		reg:    reg,
		logger: logger,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Send enqueues a payload for delivery, preserving per-sender FIFO order. It
// reports false when the session is closed or its queue is saturated; callers
// treat that as "transport not writable" and drop the message.
func (s *Session) Send(payload []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		s.logger.Warn().Msg("send queue saturated, dropping message")
		return false
	}
}

func (s *Session) run() {
	go s.writeLoop()
	s.readLoop()

	s.shutdown()
	_ = s.conn.Close()
	s.reg.Leave(s)
	s.logger.Debug().Str("room", s.room).Msg("session ended")
}

func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(defaultMaxMessageSize)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				s.logger.Debug().Err(err).Msg("connection closed")
			} else {
				s.logger.Warn().Err(err).Msg("unexpected error during receive")
			}
			return
		}
		s.dispatch(raw)
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.closed:
			return
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug().Err(err).Msg("write failed, session no longer writable")
				s.shutdown()
				return
			}
		}
	}
}

// dispatch classifies one inbound message by envelope type. Malformed
// envelopes and unknown types are discarded without a reply.
func (s *Session) dispatch(raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Debug().Err(err).Msg("malformed envelope discarded")
		return
	}
	if e := s.logger.Trace(); e.Enabled() {
		e.Str("envelope", spew.Sdump(env)).Msg("dispatching")
	}

	switch {
	case env.Type == model.TypeCreate:
		s.handleCreate()
	case env.Type == model.TypeJoin:
		s.handleJoin(env.Room)
	case model.IsRelayType(env.Type):
		if err := s.reg.Relay(s, raw); err != nil {
			s.logger.Debug().Err(err).Str("type", env.Type).Str("room", s.room).Msg("relay dropped")
		}
	default:
		s.logger.Debug().Str("type", env.Type).Msg("ignoring unknown message type")
	}
}

func (s *Session) handleCreate() {
	if s.role != roleUnjoined {
		s.replyError("Already in a room")
		return
	}
	code := s.reg.CreateRoom(s)
	s.role = roleCreator
	s.room = code
	s.reply(model.Envelope{Type: model.TypeRoomCreated, Room: code})
	s.logger.Info().Str("room", code).Msg("room created")
}

func (s *Session) handleJoin(code string) {
	if s.role != roleUnjoined {
		s.replyError("Already in a room")
		return
	}
	switch err := s.reg.JoinRoom(code, s); err {
	case nil:
		s.role = roleViewer
		s.room = code
		s.reply(model.Envelope{Type: model.TypeRoomJoined})
		s.logger.Info().Str("room", code).Msg("joined room")
	case registry.ErrRoomNotFound:
		s.replyError("Room not found")
	case registry.ErrRoomFull:
		s.replyError("Room is full")
	default:
		s.logger.Error().Err(err).Str("room", code).Msg("join failed")
	}
}

func (s *Session) reply(env model.Envelope) {
	if !s.Send(model.MustEncode(env)) {
		s.logger.Debug().Str("type", env.Type).Msg("reply dropped, session not writable")
	}
}

func (s *Session) replyError(message string) {
	s.reply(model.Envelope{Type: model.TypeError, Message: message})
}
