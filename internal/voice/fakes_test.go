package voice

import (
	"errors"
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

type sentPacket struct {
	origin domain.PeerID
	to     domain.PeerID
	ch     core.Channel
	data   []byte
}

type fakeTransport struct {
	mu       sync.Mutex
	local    domain.PeerID
	topo     domain.Topology
	peers    []domain.PeerID
	sent     []sentPacket
	handlers map[core.Channel]core.ReceiveFunc
}

func newFakeTransport(local domain.PeerID, topo domain.Topology, peers ...domain.PeerID) *fakeTransport {
	return &fakeTransport{local: local, topo: topo, peers: peers, handlers: make(map[core.Channel]core.ReceiveFunc)}
}

func (f *fakeTransport) LocalID() domain.PeerID    { return f.local }
func (f *fakeTransport) Topology() domain.Topology { return f.topo }
func (f *fakeTransport) IsAuthority() bool         { return f.topo == domain.TopologyStarHost }
func (f *fakeTransport) Connected() bool           { return len(f.peers) > 0 }
func (f *fakeTransport) Peers() []domain.PeerID    { return f.peers }

func (f *fakeTransport) Send(to domain.PeerID, ch core.Channel, payload []byte) error {
	return f.Forward(f.local, to, ch, payload)
}

func (f *fakeTransport) Forward(origin, to domain.PeerID, ch core.Channel, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentPacket{origin: origin, to: to, ch: ch, data: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeTransport) OnReceive(ch core.Channel, fn core.ReceiveFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fn == nil {
		delete(f.handlers, ch)
		return
	}
	f.handlers[ch] = fn
}

func (f *fakeTransport) packets() []sentPacket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPacket(nil), f.sent...)
}

type emitterState struct {
	pose   domain.Vec3
	volume float32
	played [][]byte
}

type fakeOutput struct {
	next      core.EmitterHandle
	emitters  map[core.EmitterHandle]*emitterState
	destroyed []core.EmitterHandle
	createErr error
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{emitters: make(map[core.EmitterHandle]*emitterState)}
}

func (o *fakeOutput) CreateEmitter() (core.EmitterHandle, error) {
	if o.createErr != nil {
		return 0, o.createErr
	}
	o.next++
	o.emitters[o.next] = &emitterState{}
	return o.next, nil
}

func (o *fakeOutput) DestroyEmitter(h core.EmitterHandle) {
	delete(o.emitters, h)
	o.destroyed = append(o.destroyed, h)
}

func (o *fakeOutput) SetEmitterPose(h core.EmitterHandle, pos domain.Vec3) { o.emitters[h].pose = pos }
func (o *fakeOutput) SetEmitterVolume(h core.EmitterHandle, db float32)    { o.emitters[h].volume = db }

func (o *fakeOutput) PlayEmitterBuffer(h core.EmitterHandle, pcm []byte, _ int) error {
	e, ok := o.emitters[h]
	if !ok {
		return errors.New("no emitter")
	}
	e.played = append(e.played, pcm)
	return nil
}

type fakeCapture struct {
	mu       sync.Mutex
	onData   func([]byte)
	starts   int
	stops    int
	startErr error
}

func (c *fakeCapture) Start(onData func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts++
	c.onData = onData
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *fakeCapture) emit(pcm []byte) {
	c.mu.Lock()
	fn := c.onData
	c.mu.Unlock()
	if fn != nil {
		fn(pcm)
	}
}

type fixedPose struct {
	pos domain.Vec3
	ok  bool
}

func (p fixedPose) LocalPose() (domain.Vec3, bool) { return p.pos, p.ok }
