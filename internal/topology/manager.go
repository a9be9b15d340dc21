// Package topology assembles the peer graph for one lobby membership: it
// drives offer/answer/candidate negotiation per remote peer and installs the
// resulting PeerSet as the active transport.
package topology

import (
	"sync"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/rs/zerolog"
)

const DefaultNegotiationTimeout = 30 * time.Second

// Signaler is the outbound half of the signaling client.
type Signaler interface {
	SendOffer(id domain.PeerID, sdp string) error
	SendAnswer(id domain.PeerID, sdp string) error
	SendCandidate(id domain.PeerID, c core.Candidate) error
}

// Listener observes topology lifecycle. Calls happen on the main tick.
type Listener interface {
	TransportInstalled(t core.Transport)
	TransportRemoved()
	PeerJoined(id domain.PeerID)
	PeerLeft(id domain.PeerID)
	// SpeakerLeft reports a lobby member that left without ever having a
	// session here, such as another client behind a star host.
	SpeakerLeft(id domain.PeerID)
	TopologyReset(reason string)
	NegotiationFailed(id domain.PeerID)
}

type upcallKind int

const (
	upcallCandidate upcallKind = iota
	upcallConnected
	upcallClosed
)

type upcall struct {
	kind      upcallKind
	session   *Session
	candidate core.Candidate
}

// sink receives connectivity upcalls for a single session. Messages bypass
// the main tick and go straight to the PeerSet the session belongs to.
type sink struct {
	m       *Manager
	session *Session
	peers   *PeerSet
}

func (s sink) OnLocalCandidate(_ domain.PeerID, c core.Candidate) {
	s.m.push(upcall{kind: upcallCandidate, session: s.session, candidate: c})
}

func (s sink) OnConnected(domain.PeerID) {
	s.m.push(upcall{kind: upcallConnected, session: s.session})
}

func (s sink) OnClosed(domain.PeerID) {
	s.m.push(upcall{kind: upcallClosed, session: s.session})
}

func (s sink) OnMessage(peer domain.PeerID, ch core.Channel, data []byte) {
	s.peers.deliver(peer, ch, data)
}

type Option func(*Manager)

func WithNegotiationTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager is main-thread only, except the upcall queue that connectivity
// goroutines push into.
type Manager struct {
	signal    Signaler
	connector core.PeerConnector
	listener  Listener
	logger    zerolog.Logger
	timeout   time.Duration
	now       func() time.Time

	joined bool
	local  domain.PeerID
	topo   domain.Topology
	sealed bool
	peers  *PeerSet

	sessions   map[domain.PeerID]*Session
	tombstones map[domain.PeerID]struct{}
	seen       []domain.PeerID

	umu     sync.Mutex
	upcalls []upcall
}

func NewManager(signal Signaler, connector core.PeerConnector, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		signal:     signal,
		connector:  connector,
		logger:     logger.With().Str("module", "topology").Logger(),
		timeout:    DefaultNegotiationTimeout,
		now:        time.Now,
		sessions:   make(map[domain.PeerID]*Session),
		tombstones: make(map[domain.PeerID]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) SetListener(l Listener) { m.listener = l }

func (m *Manager) LocalID() domain.PeerID    { return m.local }
func (m *Manager) Topology() domain.Topology { return m.topo }
func (m *Manager) Joined() bool              { return m.joined }
func (m *Manager) Sealed() bool              { return m.sealed }

// Transport returns the installed PeerSet, nil before Connected.
func (m *Manager) Transport() *PeerSet { return m.peers }

func (m *Manager) Session(id domain.PeerID) (*Session, bool) {
	s, ok := m.sessions[id]
	return s, ok
}

// AnnouncedCount counts every peer this membership has heard of, including
// closed sessions and peers announced before the id arrived.
func (m *Manager) AnnouncedCount() int {
	return len(m.sessions) + len(m.tombstones) + len(m.seen)
}

func (m *Manager) EstablishedCount() int {
	n := 0
	for _, s := range m.sessions {
		if s.state == SessionEstablished {
			n++
		}
	}
	return n
}

func (m *Manager) push(u upcall) {
	m.umu.Lock()
	m.upcalls = append(m.upcalls, u)
	m.umu.Unlock()
}

// HandleEvent consumes one signaling event.
func (m *Manager) HandleEvent(ev signaling.Event) {
	switch e := ev.(type) {
	case signaling.LobbyJoined:
		m.logger.Info().Str("lobby", string(e.Lobby)).Msg("lobby joined")
	case signaling.Connected:
		m.onConnected(e)
	case signaling.PeerConnected:
		if !m.joined {
			m.remember(e.ID)
			return
		}
		m.admit(e.ID)
	case signaling.PeerDisconnected:
		m.forget(e.ID)
		if _, ok := m.sessions[e.ID]; !ok && m.topo == domain.TopologyStarClient && m.joined && e.ID != m.local {
			if m.listener != nil {
				m.listener.SpeakerLeft(e.ID)
			}
			return
		}
		m.closeSession(e.ID, "peer disconnected")
	case signaling.OfferReceived:
		m.onOffer(e)
	case signaling.AnswerReceived:
		m.onAnswer(e)
	case signaling.CandidateReceived:
		m.onCandidate(e)
	case signaling.LobbySealed:
		m.sealed = true
		m.logger.Info().Msg("lobby sealed")
	case signaling.Disconnected:
		if m.sealed {
			m.logger.Info().Int("code", e.Code).Str("reason", e.Reason).Msg("signaling closed after seal")
			return
		}
		m.Reset(e.Reason)
	}
}

func (m *Manager) onConnected(e signaling.Connected) {
	if m.joined {
		m.logger.Warn().Str("id", e.ID.String()).Msg("duplicate id assignment ignored")
		return
	}
	m.joined = true
	m.local = e.ID
	m.topo = domain.TopologyFor(e.ID, e.Mesh)
	m.peers = NewPeerSet(m.local, m.topo, m.logger)
	m.logger.Info().
		Str("id", m.local.String()).
		Str("topology", m.topo.String()).
		Msg("topology selected")
	if m.listener != nil {
		m.listener.TransportInstalled(m.peers)
	}

	seen := m.seen
	m.seen = nil
	for _, id := range seen {
		m.admit(id)
	}
}

func (m *Manager) remember(id domain.PeerID) {
	for _, s := range m.seen {
		if s == id {
			return
		}
	}
	m.seen = append(m.seen, id)
}

func (m *Manager) forget(id domain.PeerID) {
	for i, s := range m.seen {
		if s == id {
			m.seen = append(m.seen[:i], m.seen[i+1:]...)
			return
		}
	}
}

func (m *Manager) admissible(id domain.PeerID) bool {
	if !m.joined || id == m.local || !id.Valid() {
		return false
	}
	if _, dead := m.tombstones[id]; dead {
		return false
	}
	if m.topo == domain.TopologyStarClient && id != domain.AuthorityID {
		return false
	}
	return true
}

// admit returns the session for id, creating it on first sight. nil means
// the peer is not admitted in this topology.
func (m *Manager) admit(id domain.PeerID) *Session {
	if s, ok := m.sessions[id]; ok {
		return s
	}
	if !m.admissible(id) {
		m.logger.Debug().Str("peer", id.String()).Str("topology", m.topo.String()).Msg("peer not admitted")
		return nil
	}

	s := &Session{
		peer:    id,
		role:    RoleFor(m.local, id),
		state:   SessionNegotiating,
		started: m.now(),
	}
	conn, err := m.connector.Connect(id, sink{m: m, session: s, peers: m.peers})
	if err != nil {
		m.logger.Warn().Err(err).Str("peer", id.String()).Msg("create peer connection failed")
		return nil
	}
	s.conn = conn
	m.sessions[id] = s

	logger := m.logger.With().Str("peer", id.String()).Str("role", s.role.String()).Logger()
	logger.Info().Msg("negotiating")

	if s.role == RoleInitiator {
		offer, err := conn.CreateOffer()
		if err != nil {
			logger.Warn().Err(err).Msg("create offer failed")
			return s
		}
		s.local = &offer
		if err := m.signal.SendOffer(id, offer.SDP); err != nil {
			logger.Warn().Err(err).Msg("send offer failed")
		}
	}
	return s
}

func (m *Manager) onOffer(e signaling.OfferReceived) {
	s := m.admit(e.ID)
	if s == nil {
		return
	}
	logger := m.logger.With().Str("peer", e.ID.String()).Logger()
	if s.role == RoleInitiator {
		logger.Warn().Msg("offer received as initiator, ignoring")
		return
	}
	if s.remote != nil || s.state != SessionNegotiating {
		logger.Warn().Msg("duplicate offer ignored")
		return
	}

	offer := core.Description{Type: core.DescriptionOffer, SDP: e.SDP}
	answer, err := s.conn.AcceptOffer(offer)
	if err != nil {
		logger.Warn().Err(err).Msg("accept offer failed")
		return
	}
	s.remote = &offer
	s.local = &answer
	m.flushRemoteCandidates(s)
	if err := m.signal.SendAnswer(e.ID, answer.SDP); err != nil {
		logger.Warn().Err(err).Msg("send answer failed")
	}
	m.maybeEstablish(s)
}

func (m *Manager) onAnswer(e signaling.AnswerReceived) {
	s, ok := m.sessions[e.ID]
	logger := m.logger.With().Str("peer", e.ID.String()).Logger()
	if !ok {
		logger.Warn().Msg("answer for unknown session ignored")
		return
	}
	if s.role != RoleInitiator || s.local == nil || s.remote != nil || s.state != SessionNegotiating {
		logger.Warn().Msg("unexpected answer ignored")
		return
	}
	answer := core.Description{Type: core.DescriptionAnswer, SDP: e.SDP}
	if err := s.conn.ApplyAnswer(answer); err != nil {
		logger.Warn().Err(err).Msg("apply answer failed")
		return
	}
	s.remote = &answer
	m.flushRemoteCandidates(s)
	m.maybeEstablish(s)
}

func (m *Manager) onCandidate(e signaling.CandidateReceived) {
	s := m.admit(e.ID)
	if s == nil || s.state == SessionClosed {
		return
	}
	if s.remote == nil {
		s.pendingRemote = append(s.pendingRemote, e.Candidate)
		return
	}
	if err := s.conn.AddCandidate(e.Candidate); err != nil {
		m.logger.Warn().Err(err).Str("peer", e.ID.String()).Msg("add candidate failed")
	}
}

func (m *Manager) flushRemoteCandidates(s *Session) {
	pending := s.pendingRemote
	s.pendingRemote = nil
	for _, c := range pending {
		if err := s.conn.AddCandidate(c); err != nil {
			m.logger.Warn().Err(err).Str("peer", s.peer.String()).Msg("add buffered candidate failed")
		}
	}
}

func (m *Manager) maybeEstablish(s *Session) {
	if !s.ready() {
		return
	}
	s.state = SessionEstablished
	m.peers.add(s.peer, s.conn)
	m.logger.Info().Str("peer", s.peer.String()).Msg("peer established")
	if m.listener != nil {
		m.listener.PeerJoined(s.peer)
	}
}

func (m *Manager) closeSession(id domain.PeerID, reason string) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	m.tombstones[id] = struct{}{}
	wasEstablished := s.state == SessionEstablished
	s.state = SessionClosed
	if s.conn != nil {
		_ = s.conn.Close()
	}
	m.logger.Info().Str("peer", id.String()).Str("reason", reason).Msg("session closed")
	if wasEstablished {
		m.peers.remove(id)
		if m.listener != nil {
			m.listener.PeerLeft(id)
		}
	}
}

// Tick drains connectivity upcalls and enforces the negotiation timeout.
func (m *Manager) Tick(now time.Time) {
	m.umu.Lock()
	batch := m.upcalls
	m.upcalls = nil
	m.umu.Unlock()

	for _, u := range batch {
		s := u.session
		if cur, ok := m.sessions[s.peer]; !ok || cur != s {
			continue
		}
		switch u.kind {
		case upcallCandidate:
			s.localCandidates = append(s.localCandidates, u.candidate)
			if err := m.signal.SendCandidate(s.peer, u.candidate); err != nil {
				m.logger.Debug().Err(err).Str("peer", s.peer.String()).Msg("send candidate failed")
			}
		case upcallConnected:
			s.connected = true
			m.maybeEstablish(s)
		case upcallClosed:
			m.closeSession(s.peer, "connection closed")
		}
	}

	if m.timeout <= 0 {
		return
	}
	for id, s := range m.sessions {
		if s.state != SessionNegotiating || now.Sub(s.started) < m.timeout {
			continue
		}
		m.logger.Warn().Str("peer", id.String()).Dur("timeout", m.timeout).Msg("negotiation timed out")
		m.closeSession(id, "negotiation timeout")
		if m.topo == domain.TopologyStarClient && id == domain.AuthorityID && m.listener != nil {
			m.listener.NegotiationFailed(id)
		}
	}
}

// Reset tears down every session and the transport, then reports reason.
func (m *Manager) Reset(reason string) {
	m.teardown()
	m.logger.Info().Str("reason", reason).Msg("topology reset")
	if m.listener != nil {
		m.listener.TopologyReset(reason)
	}
}

// Close tears down without reporting a reset. Safe at any time.
func (m *Manager) Close() {
	m.teardown()
}

func (m *Manager) teardown() {
	for id := range m.sessions {
		m.closeSession(id, "reset")
	}
	if m.peers != nil {
		m.peers.clear()
		m.peers = nil
		if m.listener != nil {
			m.listener.TransportRemoved()
		}
	}
	m.joined = false
	m.local = 0
	m.topo = domain.TopologyMesh
	m.sealed = false
	m.seen = nil
	m.tombstones = make(map[domain.PeerID]struct{})

	m.umu.Lock()
	m.upcalls = nil
	m.umu.Unlock()
}
