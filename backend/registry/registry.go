// Package registry holds the authoritative in-memory table of active rooms.
// All room lifecycle operations pass through it.
package registry

import (
	"errors"
	"sync"

	"github.com/camlink/signaling/backend/model"
	"github.com/camlink/signaling/backend/roomcode"
	"github.com/rs/zerolog"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrNoActiveRoom    = errors.New("session has no active room")
	ErrPeerUnavailable = errors.New("peer is absent or not writable")
)

// Peer is the registry's view of a connection session. Send enqueues a
// payload best-effort and reports whether the transport accepted it; a false
// return is never escalated by the registry.
type Peer interface {
	Send(payload []byte) bool
}

// Room pairs a creator with at most one viewer under a short code. The
// creator is set at creation and never reassigned; the viewer slot churns.
type Room struct {
	Code    string
	Creator Peer
	Viewer  Peer
}

type Registry struct {
	logger   zerolog.Logger
	mx       *sync.Mutex
	rooms    map[string]*Room
	members  map[Peer]string
	generate func() string
}

type Config struct {
	Logger *zerolog.Logger

	// GenerateCode overrides the room code source. Nil means roomcode.Generate.
	GenerateCode func() string
}

func New(cfg Config) *Registry {
	gen := cfg.GenerateCode
	if gen == nil {
		gen = roomcode.Generate
	}
	return &Registry{
		logger:   cfg.Logger.With().Str("component", "registry").Logger(),
		mx:       &sync.Mutex{},
		rooms:    make(map[string]*Room),
		members:  make(map[Peer]string),
		generate: gen,
	}
}

// CreateRoom inserts a new room with an empty viewer slot and returns its
// code. Codes are resampled until unused among live rooms.
func (r *Registry) CreateRoom(creator Peer) string {
	r.mx.Lock()
	var code string
	for {
		code = r.generate()
		if _, taken := r.rooms[code]; !taken {
			break
		}
	}
	r.rooms[code] = &Room{Code: code, Creator: creator}
	r.members[creator] = code
	r.mx.Unlock()

	r.logger.Debug().Str("room", code).Msg("room created")
	return code
}

// JoinRoom fills the viewer slot of an existing room. On success the creator
// is notified with peer_joined; the notification is attempt-once and a
// non-writable creator is tolerated silently.
func (r *Registry) JoinRoom(code string, viewer Peer) error {
	r.mx.Lock()
	room, ok := r.rooms[code]
	if !ok {
		r.mx.Unlock()
		return ErrRoomNotFound
	}
	if room.Viewer != nil {
		r.mx.Unlock()
		return ErrRoomFull
	}
	room.Viewer = viewer
	r.members[viewer] = code
	creator := room.Creator
	r.mx.Unlock()

	if !creator.Send(model.MustEncode(model.Envelope{Type: model.TypePeerJoined})) {
		r.logger.Debug().Str("room", code).Msg("creator not writable, peer_joined dropped")
	}
	r.logger.Debug().Str("room", code).Msg("viewer joined")
	return nil
}

// Relay forwards payload verbatim to the counterpart of the sender's room.
// The counterpart is resolved under lock; the send happens outside it, so the
// peer may disconnect in between. That race surfaces as ErrPeerUnavailable.
func (r *Registry) Relay(from Peer, payload []byte) error {
	r.mx.Lock()
	code, ok := r.members[from]
	if !ok {
		r.mx.Unlock()
		return ErrNoActiveRoom
	}
	room := r.rooms[code]
	var target Peer
	if room.Creator == from {
		target = room.Viewer
	} else {
		target = room.Creator
	}
	r.mx.Unlock()

	if target == nil || !target.Send(payload) {
		return ErrPeerUnavailable
	}
	return nil
}

// Leave removes the session from its room. A leaving creator tears the whole
// room down; a leaving viewer only frees the viewer slot, keeping the room
// joinable under its original code. The remaining peer, if writable, gets
// peer_left. Unknown sessions are a no-op.
func (r *Registry) Leave(session Peer) {
	r.mx.Lock()
	code, ok := r.members[session]
	if !ok {
		r.mx.Unlock()
		return
	}
	delete(r.members, session)
	room := r.rooms[code]

	var (
		other     Peer
		destroyed bool
	)
	if room.Creator == session {
		other = room.Viewer
		if other != nil {
			delete(r.members, other)
		}
		delete(r.rooms, code)
		destroyed = true
	} else {
		other = room.Creator
		room.Viewer = nil
	}
	r.mx.Unlock()

	if other != nil && !other.Send(model.MustEncode(model.Envelope{Type: model.TypePeerLeft})) {
		r.logger.Debug().Str("room", code).Msg("peer not writable, peer_left dropped")
	}
	if destroyed {
		r.logger.Debug().Str("room", code).Msg("room destroyed")
	} else {
		r.logger.Debug().Str("room", code).Msg("viewer slot freed")
	}
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.rooms)
}
