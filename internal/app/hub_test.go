package app

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	return NewHub(HubConfig{SealCloseTimeout: 10 * time.Millisecond}, SimplePolicy{})
}

func connect(h *Hub, id ConnID) *fakeSignal {
	sig := &fakeSignal{}
	h.Connect(id, "token-"+string(id), sig, nil)
	return sig
}

func TestJoinStarAssignsHostAndAnnounces(t *testing.T) {
	h := newTestHub()
	host := connect(h, "a")
	h.Join("a", false, "plaza")

	require.Equal(t, []signaling.Frame{
		{Type: signaling.MsgID, ID: 1, Data: "false"},
		{Type: signaling.MsgJoin, Data: "plaza"},
	}, host.sent())

	c2 := connect(h, "b")
	h.Join("b", false, "plaza")
	c3 := connect(h, "c")
	h.Join("c", false, "plaza")

	assert.Equal(t, []signaling.Frame{
		{Type: signaling.MsgID, ID: 3, Data: "false"},
		{Type: signaling.MsgJoin, Data: "plaza"},
		{Type: signaling.MsgPeerConnect, ID: 1},
	}, c3.sent(), "star clients only learn about the host")
	assert.NotContains(t, c2.sent(), signaling.Frame{Type: signaling.MsgPeerConnect, ID: 3})
	assert.Equal(t, []signaling.Frame{
		{Type: signaling.MsgID, ID: 1, Data: "false"},
		{Type: signaling.MsgJoin, Data: "plaza"},
		{Type: signaling.MsgPeerConnect, ID: 2},
		{Type: signaling.MsgPeerConnect, ID: 3},
	}, host.sent())
}

func TestJoinMeshAnnouncesEveryone(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", true, "m")
	b := connect(h, "b")
	h.Join("b", true, "m")
	c := connect(h, "c")
	h.Join("c", true, "m")

	assert.Contains(t, a.sent(), signaling.Frame{Type: signaling.MsgPeerConnect, ID: 3})
	assert.Contains(t, b.sent(), signaling.Frame{Type: signaling.MsgPeerConnect, ID: 3})
	assert.Equal(t, signaling.Frame{Type: signaling.MsgID, ID: 3, Data: "true"}, c.sent()[0])
	assert.Contains(t, c.sent(), signaling.Frame{Type: signaling.MsgPeerConnect, ID: 1})
	assert.Contains(t, c.sent(), signaling.Frame{Type: signaling.MsgPeerConnect, ID: 2})
}

func TestJoinEmptyNameGeneratesLobby(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", true, "")

	frames := a.sent()
	require.Len(t, frames, 2)
	assert.Equal(t, signaling.MsgJoin, frames[1].Type)
	assert.NotEmpty(t, frames[1].Data)
	_, ok := h.Lobbies.Get(domain.LobbyName(frames[1].Data))
	assert.True(t, ok)
}

func TestJoinTwiceCloses(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", true, "x")
	h.Join("a", true, "y")

	closed, code, reason := a.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseProtocol, code)
	assert.Equal(t, ReasonAlreadyJoined, reason)
}

func TestRelayRewritesSourceID(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", true, "m")
	b := connect(h, "b")
	h.Join("b", true, "m")
	a.reset()
	b.reset()

	h.Relay("a", signaling.Frame{Type: signaling.MsgOffer, ID: 2, Data: "sdp"})
	assert.Equal(t, []signaling.Frame{{Type: signaling.MsgOffer, ID: 1, Data: "sdp"}}, b.sent())

	h.Relay("b", signaling.Frame{Type: signaling.MsgCandidate, ID: 9, Data: "\n0\n0\nc"})
	assert.Empty(t, a.sent(), "unknown destination is ignored")
}

func TestSealBroadcastsAndCloses(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", false, "s")
	b := connect(h, "b")
	h.Join("b", false, "s")

	h.Seal("b")
	closed, code, _ := b.closeInfo()
	require.True(t, closed)
	assert.Equal(t, CloseProtocol, code)

	c := connect(h, "c")
	h.Join("c", false, "s")
	a.reset()
	h.Seal("a")
	assert.Equal(t, []signaling.Frame{{Type: signaling.MsgSeal}}, a.sent())

	require.Eventually(t, func() bool {
		closed, code, reason := a.closeInfo()
		return closed && code == CloseNormal && reason == ReasonSealComplete
	}, time.Second, 5*time.Millisecond)

	late := connect(h, "d")
	h.Join("d", false, "s")
	closed, code, reason := late.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseSealed, code)
	assert.Equal(t, ReasonSealed, reason)
	assert.Contains(t, c.sent(), signaling.Frame{Type: signaling.MsgSeal})
}

func TestDisconnectMeshNotifiesOthers(t *testing.T) {
	h := newTestHub()
	connect(h, "a")
	h.Join("a", true, "m")
	b := connect(h, "b")
	h.Join("b", true, "m")
	b.reset()

	h.Disconnect("a")
	assert.Equal(t, []signaling.Frame{{Type: signaling.MsgPeerDisconnect, ID: 1}}, b.sent())

	h.Disconnect("b")
	_, ok := h.Lobbies.Get("m")
	assert.False(t, ok, "empty lobby is removed")
	assert.Zero(t, h.Registry.Count())
}

func TestDisconnectStarHostClosesLobby(t *testing.T) {
	h := newTestHub()
	connect(h, "a")
	h.Join("a", false, "s")
	b := connect(h, "b")
	h.Join("b", false, "s")

	h.Disconnect("a")
	closed, code, reason := b.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseProtocol, code)
	assert.Equal(t, ReasonHostLeft, reason)
	_, ok := h.Lobbies.Get("s")
	assert.False(t, ok)
}

func TestDisconnectStarClientNotifiesEveryone(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	h.Join("a", false, "s")
	b := connect(h, "b")
	h.Join("b", false, "s")
	connect(h, "c")
	h.Join("c", false, "s")
	a.reset()
	b.reset()

	h.Disconnect("c")
	assert.Equal(t, []signaling.Frame{{Type: signaling.MsgPeerDisconnect, ID: 3}}, a.sent())
	assert.Equal(t, []signaling.Frame{{Type: signaling.MsgPeerDisconnect, ID: 3}}, b.sent(),
		"clients drop the emitter of a speaker relayed by the host")
}

func TestJoinTimeoutClosesIdleConnection(t *testing.T) {
	h := NewHub(HubConfig{JoinTimeout: 10 * time.Millisecond}, SimplePolicy{})
	idle := connect(h, "idle")
	joined := connect(h, "joined")
	h.Join("joined", true, "")

	require.Eventually(t, func() bool {
		closed, code, reason := idle.closeInfo()
		return closed && code == CloseProtocol && reason == ReasonNoLobby
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	closed, _, _ := joined.closeInfo()
	assert.False(t, closed)
}

func TestBackpressureKicksMember(t *testing.T) {
	h := newTestHub()
	connect(h, "a")
	h.Join("a", true, "m")
	b := connect(h, "b")
	h.Join("b", true, "m")
	b.mu.Lock()
	b.full = true
	b.mu.Unlock()

	h.Relay("a", signaling.Frame{Type: signaling.MsgOffer, ID: 2, Data: "sdp"})
	closed, code, reason := b.closeInfo()
	assert.True(t, closed)
	assert.Equal(t, CloseBackpressure, code)
	assert.Equal(t, ReasonSlow, reason)
}

func TestJoinLongNameKeepsRunes(t *testing.T) {
	h := newTestHub()
	a := connect(h, "a")
	name := strings.Repeat("a", domain.MaxLobbyNameLen-1) + "é-tail"
	h.Join("a", true, domain.LobbyName(name))

	frames := a.sent()
	require.Len(t, frames, 2)
	got := frames[1].Data
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", domain.MaxLobbyNameLen-1), got)
}

func TestLobbyListing(t *testing.T) {
	h := newTestHub()
	connect(h, "a")
	h.Join("a", true, "b-lobby")
	connect(h, "b")
	h.Join("b", false, "a-lobby")

	assert.Equal(t, []LobbyInfo{
		{Name: "a-lobby", Mesh: false, MemberCount: 1},
		{Name: "b-lobby", Mesh: true, MemberCount: 1},
	}, h.Lobbies.List())
}
