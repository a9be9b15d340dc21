package signal

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/spatialvoice/internal/app"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(limit int) *SignalWSController {
	hub := app.NewHub(app.HubConfig{SealCloseTimeout: 10 * time.Millisecond}, app.SimplePolicy{})
	return NewSignalWSController(hub, NewJoinRateLimiter(limit, time.Minute), ControllerConfig{SendBuffer: 8})
}

func waitFrames(t *testing.T, ws *fakeWS, n int) []signaling.Frame {
	t.Helper()
	require.Eventually(t, func() bool { return len(ws.frames()) >= n }, time.Second, 5*time.Millisecond)
	return ws.frames()
}

func TestServeStarJoinAndRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newController(10)

	host := newFakeWS()
	ctl.Serve(ctx, "host", host)
	host.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinStar, Data: "plaza"})
	assert.Equal(t, []signaling.Frame{
		{Type: signaling.MsgID, ID: 1, Data: "false"},
		{Type: signaling.MsgJoin, Data: "plaza"},
	}, waitFrames(t, host, 2))

	client := newFakeWS()
	ctl.Serve(ctx, "client", client)
	client.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinStar, Data: "plaza"})
	got := waitFrames(t, client, 3)
	assert.Equal(t, signaling.Frame{Type: signaling.MsgID, ID: 2, Data: "false"}, got[0])
	assert.Equal(t, signaling.Frame{Type: signaling.MsgPeerConnect, ID: 1}, got[2])
	assert.Equal(t, signaling.Frame{Type: signaling.MsgPeerConnect, ID: 2}, waitFrames(t, host, 3)[2])

	host.send(signaling.Frame{Type: signaling.MsgOffer, ID: 2, Data: "v=0"})
	assert.Equal(t, signaling.Frame{Type: signaling.MsgOffer, ID: 1, Data: "v=0"}, waitFrames(t, client, 4)[3])
}

func TestServeMalformedFrameIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newController(10)

	ws := newFakeWS()
	ctl.Serve(ctx, "t", ws)
	ws.in <- []byte(`{"type":"x"}`)
	ws.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinMesh})
	frames := waitFrames(t, ws, 2)
	assert.Equal(t, signaling.Frame{Type: signaling.MsgID, ID: 1, Data: "true"}, frames[0])
	assert.False(t, ws.isClosed())
}

func TestServeJoinRateLimited(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newController(1)

	first := newFakeWS()
	ctl.Serve(ctx, "same", first)
	first.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinMesh})
	waitFrames(t, first, 2)

	second := newFakeWS()
	ctl.Serve(ctx, "same", second)
	second.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinMesh})
	require.Eventually(t, second.isClosed, time.Second, 5*time.Millisecond)
	code, reason := second.closeCode()
	assert.Equal(t, app.CloseRateLimited, code)
	assert.Equal(t, app.ReasonRateLimited, reason)
}

func TestServeDisconnectNotifiesPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newController(10)

	a := newFakeWS()
	ctl.Serve(ctx, "a", a)
	a.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinMesh, Data: "m"})
	waitFrames(t, a, 2)
	b := newFakeWS()
	ctl.Serve(ctx, "b", b)
	b.send(signaling.Frame{Type: signaling.MsgJoin, ID: signaling.JoinMesh, Data: "m"})
	waitFrames(t, b, 3)

	_ = b.Close()
	assert.Equal(t, signaling.Frame{Type: signaling.MsgPeerDisconnect, ID: 2}, waitFrames(t, a, 4)[3])
	require.Eventually(t, func() bool { return ctl.Hub.Registry.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTrySendAfterClose(t *testing.T) {
	c := NewWsSignalConn(newFakeWS(), 1)
	require.NoError(t, c.TrySend([]byte("a")))
	assert.ErrorIs(t, c.TrySend([]byte("b")), app.ErrSendBackpressure)
	c.Close()
	assert.ErrorIs(t, c.TrySend([]byte("c")), ErrClosed)
	c.CloseWith(4000, "again")
}

func TestJoinRateLimiterWindow(t *testing.T) {
	rl := NewJoinRateLimiter(2, time.Second)
	now := time.Unix(100, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "tokens are independent")

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("a"))
}

func TestCloseWithUsesOnlyControlWriter(t *testing.T) {
	ws := &controlWS{fakeWS: newFakeWS()}
	c := NewWsSignalConn(ws, 1)
	c.CloseWith(app.CloseSealed, app.ReasonSealed)

	code, reason := ws.closeCode()
	assert.Equal(t, app.CloseSealed, code)
	assert.Equal(t, app.ReasonSealed, reason)
	assert.True(t, ws.isClosed())
	ws.mu.Lock()
	defer ws.mu.Unlock()
	assert.Equal(t, 1, ws.controls)
	assert.Zero(t, ws.deadlines, "the writer pump owns the write deadline")
}
