package orch

import (
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/dkeye/spatialvoice/internal/topology"
)

type fakeSignal struct {
	listeners []func(signaling.Event)
	urls      []string
	lobbies   []domain.LobbyName
	mesh      bool
	closes    int
	polls     int
	seals     int
}

func (f *fakeSignal) Connect(url string)                 { f.urls = append(f.urls, url) }
func (f *fakeSignal) Close()                             { f.closes++ }
func (f *fakeSignal) Poll()                              { f.polls++ }
func (f *fakeSignal) Subscribe(fn func(signaling.Event)) { f.listeners = append(f.listeners, fn) }

func (f *fakeSignal) Seal() error {
	f.seals++
	return nil
}

func (f *fakeSignal) SetLobby(l domain.LobbyName, mesh bool) {
	f.lobbies = append(f.lobbies, l)
	f.mesh = mesh
}

func (f *fakeSignal) emit(ev signaling.Event) {
	for _, fn := range f.listeners {
		fn(ev)
	}
}

// fakeTopology records events and assigns the local id from Connected.
type fakeTopology struct {
	listener topology.Listener
	events   []signaling.Event
	local    domain.PeerID
	mesh     bool
	peers    int
	ticks    int
	closes   int
}

func (f *fakeTopology) HandleEvent(ev signaling.Event) {
	f.events = append(f.events, ev)
	switch e := ev.(type) {
	case signaling.Connected:
		f.local = e.ID
		f.mesh = e.Mesh
	case signaling.PeerConnected:
		f.peers++
	}
}

func (f *fakeTopology) Tick(time.Time) { f.ticks++ }

func (f *fakeTopology) Close() {
	f.closes++
	f.local = 0
	f.peers = 0
}

func (f *fakeTopology) SetListener(l topology.Listener) { f.listener = l }
func (f *fakeTopology) LocalID() domain.PeerID          { return f.local }
func (f *fakeTopology) Joined() bool                    { return f.local != 0 }
func (f *fakeTopology) AnnouncedCount() int             { return f.peers }

func (f *fakeTopology) Topology() domain.Topology {
	return domain.TopologyFor(f.local, f.mesh)
}

type fakeRelay struct {
	installed core.Transport
}

func (f *fakeRelay) Install(t core.Transport) { f.installed = t }
func (f *fakeRelay) Uninstall()               { f.installed = nil }

type fakeVoice struct {
	capturing bool
	starts    int
	closes    int
	joined    []domain.PeerID
	left      []domain.PeerID
	elapsed   time.Duration
}

func (f *fakeVoice) StartCapture() error {
	f.starts++
	f.capturing = true
	return nil
}

func (f *fakeVoice) StopCapture() error {
	f.capturing = false
	return nil
}

func (f *fakeVoice) Tick(dt time.Duration)       { f.elapsed += dt }
func (f *fakeVoice) PeerJoined(id domain.PeerID) { f.joined = append(f.joined, id) }
func (f *fakeVoice) PeerLeft(id domain.PeerID)   { f.left = append(f.left, id) }

func (f *fakeVoice) Close() {
	f.closes++
	f.capturing = false
}
