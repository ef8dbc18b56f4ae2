package registry

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/camlink/signaling/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mx       sync.Mutex
	writable bool
	sent     [][]byte
}

func newFakePeer() *fakePeer {
	return &fakePeer{writable: true}
}

func (p *fakePeer) Send(payload []byte) bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	if !p.writable {
		return false
	}
	p.sent = append(p.sent, payload)
	return true
}

func (p *fakePeer) types(t *testing.T) []string {
	t.Helper()
	p.mx.Lock()
	defer p.mx.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, raw := range p.sent {
		var env model.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env.Type)
	}
	return out
}

func newTestRegistry(gen func() string) *Registry {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return New(Config{Logger: &logger, GenerateCode: gen})
}

func TestCreateRoomCodesAreDistinct(t *testing.T) {
	reg := newTestRegistry(nil)
	codes := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code := reg.CreateRoom(newFakePeer())
		_, dup := codes[code]
		require.Falsef(t, dup, "duplicate live room code %q", code)
		codes[code] = struct{}{}
	}
	assert.Equal(t, 200, reg.Count())
}

func TestCreateRoomResamplesOnCollision(t *testing.T) {
	seq := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	var i int
	reg := newTestRegistry(func() string {
		code := seq[i]
		i++
		return code
	})

	require.Equal(t, "AAAAAA", reg.CreateRoom(newFakePeer()))
	require.Equal(t, "BBBBBB", reg.CreateRoom(newFakePeer()))
}

func TestJoinRoomNotFound(t *testing.T) {
	reg := newTestRegistry(nil)
	viewer := newFakePeer()

	err := reg.JoinRoom("NOSUCH", viewer)
	require.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, viewer.sent)
	assert.Equal(t, 0, reg.Count())

	// Registry state unchanged: a relay from the would-be viewer has no room.
	require.ErrorIs(t, reg.Relay(viewer, []byte(`{"type":"offer"}`)), ErrNoActiveRoom)
}

func TestJoinRoomFullKeepsExistingViewer(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer, late := newFakePeer(), newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))
	require.ErrorIs(t, reg.JoinRoom(code, late), ErrRoomFull)

	// The original viewer still receives relays; the rejected one never does.
	payload := []byte(`{"type":"offer","sdp":"v=0"}`)
	require.NoError(t, reg.Relay(creator, payload))
	assert.Equal(t, [][]byte{payload}, viewer.sent)
	assert.Empty(t, late.sent)
}

func TestJoinNotifiesCreator(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))

	assert.Equal(t, []string{model.TypePeerJoined}, creator.types(t))
	assert.Empty(t, viewer.sent)
}

func TestJoinSucceedsWhenCreatorNotWritable(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()
	creator.writable = false

	code := reg.CreateRoom(creator)
	// peer_joined is attempt-once; a dropped notification is not an error.
	require.NoError(t, reg.JoinRoom(code, viewer))
}

func TestRelayReachesOnlyCounterpart(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))
	creator.sent = nil

	offer := []byte(`{"type":"offer","sdp":"v=0\r\n"}`)
	require.NoError(t, reg.Relay(creator, offer))
	assert.Equal(t, [][]byte{offer}, viewer.sent)
	assert.Empty(t, creator.sent)

	answer := []byte(`{"type":"answer","sdp":"v=0\r\n"}`)
	require.NoError(t, reg.Relay(viewer, answer))
	assert.Equal(t, [][]byte{answer}, creator.sent)
	assert.Equal(t, [][]byte{offer}, viewer.sent)
}

func TestRelayWithoutRoom(t *testing.T) {
	reg := newTestRegistry(nil)
	stray := newFakePeer()

	require.ErrorIs(t, reg.Relay(stray, []byte(`{"type":"candidate"}`)), ErrNoActiveRoom)
	assert.Equal(t, 0, reg.Count())
}

func TestRelayWithoutPeer(t *testing.T) {
	reg := newTestRegistry(nil)
	creator := newFakePeer()
	reg.CreateRoom(creator)

	require.ErrorIs(t, reg.Relay(creator, []byte(`{"type":"offer"}`)), ErrPeerUnavailable)
}

func TestRelayToUnwritablePeer(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))
	viewer.writable = false

	require.ErrorIs(t, reg.Relay(creator, []byte(`{"type":"offer"}`)), ErrPeerUnavailable)
}

func TestCreatorLeaveDestroysRoom(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))

	reg.Leave(creator)

	assert.Equal(t, []string{model.TypePeerLeft}, viewer.types(t))
	assert.Equal(t, 0, reg.Count())
	require.ErrorIs(t, reg.JoinRoom(code, newFakePeer()), ErrRoomNotFound)

	// The orphaned viewer lost its membership along with the room.
	require.ErrorIs(t, reg.Relay(viewer, []byte(`{"type":"answer"}`)), ErrNoActiveRoom)
}

func TestViewerLeavePreservesRoom(t *testing.T) {
	reg := newTestRegistry(nil)
	creator, viewer := newFakePeer(), newFakePeer()

	code := reg.CreateRoom(creator)
	require.NoError(t, reg.JoinRoom(code, viewer))
	creator.sent = nil

	reg.Leave(viewer)

	assert.Equal(t, []string{model.TypePeerLeft}, creator.types(t))
	assert.Equal(t, 1, reg.Count())

	// Same code accepts a fresh viewer.
	require.NoError(t, reg.JoinRoom(code, newFakePeer()))
}

func TestLeaveUnknownSessionIsNoop(t *testing.T) {
	reg := newTestRegistry(nil)
	code := reg.CreateRoom(newFakePeer())

	reg.Leave(newFakePeer())

	assert.Equal(t, 1, reg.Count())
	require.NoError(t, reg.JoinRoom(code, newFakePeer()))
}

func TestConcurrentCreateAndLeave(t *testing.T) {
	reg := newTestRegistry(nil)

	var (
		wg    sync.WaitGroup
		mx    sync.Mutex
		codes = make(map[string]struct{})
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creator, viewer := newFakePeer(), newFakePeer()
			code := reg.CreateRoom(creator)

			mx.Lock()
			_, dup := codes[code]
			codes[code] = struct{}{}
			mx.Unlock()
			assert.False(t, dup)

			assert.NoError(t, reg.JoinRoom(code, viewer))
			assert.NoError(t, reg.Relay(creator, []byte(`{"type":"offer"}`)))
			reg.Leave(viewer)
			reg.Leave(creator)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Count())
}
