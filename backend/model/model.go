package model

import "encoding/json"

// Client -> server message types.
const (
	TypeCreate    = "create"
	TypeJoin      = "join"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
)

// Server -> client message types.
const (
	TypeRoomCreated = "room_created"
	TypeRoomJoined  = "room_joined"
	TypePeerJoined  = "peer_joined"
	TypePeerLeft    = "peer_left"
	TypeError       = "error"
)

// Envelope is the routing view of a signaling message. Only Type and Room are
// ever inspected by the server; offer/answer/candidate envelopes carry
// additional SDP/ICE fields that are relayed as received and never decoded
// here.
type Envelope struct {
	Type    string `json:"type"`
	Room    string `json:"room,omitempty"`
	Message string `json:"message,omitempty"`
}

// IsRelayType reports whether messages of this type are forwarded verbatim to
// the room counterpart.
func IsRelayType(t string) bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}

// MustEncode marshals an envelope. Envelope has no unmarshalable fields, so a
// failure here is a programming error.
func MustEncode(env Envelope) []byte {
	b, err := json.Marshal(&env)
	if err != nil {
		panic(err)
	}
	return b
}
