package topology

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownPeer = errors.New("unknown peer")
	ErrPeerDead    = errors.New("peer endpoint dead")
)

// envelopeHeader is the origin id prefix carried by every packet.
const envelopeHeader = 4

// PeerSet is the transport installed once a topology is assembled. Every
// packet is wrapped as [origin uint32 LE][payload] so relayed packets keep
// their original sender.
type PeerSet struct {
	local    domain.PeerID
	topology domain.Topology
	logger   zerolog.Logger

	mu        sync.RWMutex
	endpoints map[domain.PeerID]*endpoint

	hmu      sync.RWMutex
	handlers map[core.Channel]core.ReceiveFunc
}

var _ core.Transport = (*PeerSet)(nil)

func NewPeerSet(local domain.PeerID, topo domain.Topology, logger zerolog.Logger) *PeerSet {
	return &PeerSet{
		local:     local,
		topology:  topo,
		logger:    logger.With().Str("module", "peerset").Logger(),
		endpoints: make(map[domain.PeerID]*endpoint),
		handlers:  make(map[core.Channel]core.ReceiveFunc),
	}
}

func (p *PeerSet) LocalID() domain.PeerID    { return p.local }
func (p *PeerSet) Topology() domain.Topology { return p.topology }
func (p *PeerSet) IsAuthority() bool         { return p.topology == domain.TopologyStarHost }

// Connected reports whether at least one endpoint is usable.
func (p *PeerSet) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ep := range p.endpoints {
		if ep.State() == EndpointOk {
			return true
		}
	}
	return false
}

// Peers returns usable endpoints in ascending id order.
func (p *PeerSet) Peers() []domain.PeerID {
	p.mu.RLock()
	ids := make([]domain.PeerID, 0, len(p.endpoints))
	for id, ep := range p.endpoints {
		if ep.State() == EndpointOk {
			ids = append(ids, id)
		}
	}
	p.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (p *PeerSet) Send(to domain.PeerID, ch core.Channel, payload []byte) error {
	return p.Forward(p.local, to, ch, payload)
}

func (p *PeerSet) Forward(origin, to domain.PeerID, ch core.Channel, payload []byte) error {
	p.mu.RLock()
	ep, ok := p.endpoints[to]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, to)
	}
	if ep.State() == EndpointDead {
		return fmt.Errorf("%w: %s", ErrPeerDead, to)
	}

	packet := make([]byte, envelopeHeader+len(payload))
	binary.LittleEndian.PutUint32(packet, uint32(origin))
	copy(packet[envelopeHeader:], payload)

	if err := ep.conn.Send(ch, packet); err != nil {
		p.logger.Debug().Err(err).Str("peer", to.String()).Msg("send failed, marking endpoint dead")
		ep.MarkDead()
		return err
	}
	return nil
}

func (p *PeerSet) OnReceive(ch core.Channel, fn core.ReceiveFunc) {
	p.hmu.Lock()
	defer p.hmu.Unlock()
	if fn == nil {
		delete(p.handlers, ch)
		return
	}
	p.handlers[ch] = fn
}

// deliver is called from connectivity goroutines with a raw packet from link.
func (p *PeerSet) deliver(link domain.PeerID, ch core.Channel, packet []byte) {
	if len(packet) < envelopeHeader {
		p.logger.Debug().Str("peer", link.String()).Int("len", len(packet)).Msg("dropping short packet")
		return
	}
	origin := link
	// Only the authority relays on behalf of others.
	if p.topology == domain.TopologyStarClient && link == domain.AuthorityID {
		claimed := domain.PeerID(binary.LittleEndian.Uint32(packet))
		if claimed.Valid() {
			origin = claimed
		}
	}

	p.hmu.RLock()
	fn := p.handlers[ch]
	p.hmu.RUnlock()
	if fn == nil {
		return
	}
	fn(origin, packet[envelopeHeader:])
}

func (p *PeerSet) add(peer domain.PeerID, conn core.PeerConn) {
	p.mu.Lock()
	p.endpoints[peer] = newEndpoint(peer, conn)
	p.mu.Unlock()
}

func (p *PeerSet) remove(peer domain.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[peer]
	if !ok {
		return false
	}
	ep.MarkDead()
	delete(p.endpoints, peer)
	return true
}

func (p *PeerSet) clear() {
	p.mu.Lock()
	for id, ep := range p.endpoints {
		ep.MarkDead()
		delete(p.endpoints, id)
	}
	p.mu.Unlock()
}
