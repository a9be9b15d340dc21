package topology

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

type fakeConn struct {
	mu         sync.Mutex
	local      domain.PeerID
	peer       domain.PeerID
	up         core.PeerUpcalls
	remote     *core.Description
	candidates []core.Candidate
	sent       [][]byte
	sendErr    error
	closed     bool
}

func (c *fakeConn) CreateOffer() (core.Description, error) {
	return core.Description{Type: core.DescriptionOffer, SDP: fmt.Sprintf("offer %d->%d", c.local, c.peer)}, nil
}

func (c *fakeConn) AcceptOffer(offer core.Description) (core.Description, error) {
	c.remote = &offer
	return core.Description{Type: core.DescriptionAnswer, SDP: fmt.Sprintf("answer %d->%d", c.local, c.peer)}, nil
}

func (c *fakeConn) ApplyAnswer(answer core.Description) error {
	c.remote = &answer
	return nil
}

func (c *fakeConn) AddCandidate(cand core.Candidate) error {
	if c.remote == nil {
		return errors.New("no remote description")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *fakeConn) Send(_ core.Channel, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeConnector struct {
	local domain.PeerID
	conns map[domain.PeerID]*fakeConn
}

func newFakeConnector(local domain.PeerID) *fakeConnector {
	return &fakeConnector{local: local, conns: make(map[domain.PeerID]*fakeConn)}
}

func (f *fakeConnector) Connect(peer domain.PeerID, up core.PeerUpcalls) (core.PeerConn, error) {
	c := &fakeConn{local: f.local, peer: peer, up: up}
	f.conns[peer] = c
	return c, nil
}

type sentSignal struct {
	kind string
	to   domain.PeerID
	data string
}

type fakeSignaler struct {
	sent []sentSignal
}

func (s *fakeSignaler) SendOffer(id domain.PeerID, sdp string) error {
	s.sent = append(s.sent, sentSignal{"offer", id, sdp})
	return nil
}

func (s *fakeSignaler) SendAnswer(id domain.PeerID, sdp string) error {
	s.sent = append(s.sent, sentSignal{"answer", id, sdp})
	return nil
}

func (s *fakeSignaler) SendCandidate(id domain.PeerID, c core.Candidate) error {
	s.sent = append(s.sent, sentSignal{"candidate", id, c.SDP})
	return nil
}

func (s *fakeSignaler) count(kind string) int {
	n := 0
	for _, m := range s.sent {
		if m.kind == kind {
			n++
		}
	}
	return n
}

type recordingListener struct {
	transport core.Transport
	removed   int
	joined    []domain.PeerID
	left      []domain.PeerID
	speakers  []domain.PeerID
	resets    []string
	failed    []domain.PeerID
}

func (l *recordingListener) TransportInstalled(t core.Transport) { l.transport = t }
func (l *recordingListener) TransportRemoved()                   { l.removed++ }
func (l *recordingListener) PeerJoined(id domain.PeerID)         { l.joined = append(l.joined, id) }
func (l *recordingListener) PeerLeft(id domain.PeerID)           { l.left = append(l.left, id) }
func (l *recordingListener) SpeakerLeft(id domain.PeerID)        { l.speakers = append(l.speakers, id) }
func (l *recordingListener) TopologyReset(reason string)         { l.resets = append(l.resets, reason) }
func (l *recordingListener) NegotiationFailed(id domain.PeerID)  { l.failed = append(l.failed, id) }
