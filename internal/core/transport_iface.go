package core

import "github.com/dkeye/spatialvoice/internal/domain"

// ReceiveFunc handles one inbound packet. origin is the peer that produced
// the payload, which differs from the link peer for relayed packets.
type ReceiveFunc func(origin domain.PeerID, payload []byte)

// Transport is the active multiplayer transport installed after topology
// assembly. All game traffic addresses peers through it.
type Transport interface {
	LocalID() domain.PeerID
	Topology() domain.Topology
	IsAuthority() bool
	Connected() bool
	Peers() []domain.PeerID
	Send(to domain.PeerID, ch Channel, payload []byte) error
	// Forward relays payload to `to` keeping origin as the source.
	Forward(origin, to domain.PeerID, ch Channel, payload []byte) error
	OnReceive(ch Channel, fn ReceiveFunc)
}
