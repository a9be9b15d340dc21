package core

import "github.com/dkeye/spatialvoice/internal/domain"

// Channel identifies a traffic class on a peer transport.
type Channel uint8

const (
	// GameChannel is reliable and ordered.
	GameChannel Channel = 0
	// VoiceChannel is unreliable and unordered; reserved for voice frames.
	VoiceChannel Channel = 63
)

// Description is a session description (offer or answer).
type Description struct {
	Type string
	SDP  string
}

const (
	DescriptionOffer  = "offer"
	DescriptionAnswer = "answer"
)

// Candidate is one connectivity candidate as carried by signaling.
type Candidate struct {
	Mid   string
	Index int
	SDP   string
}

// PeerUpcalls is how the connectivity layer reports back. Calls may arrive
// on any goroutine.
type PeerUpcalls interface {
	OnLocalCandidate(peer domain.PeerID, c Candidate)
	OnConnected(peer domain.PeerID)
	OnClosed(peer domain.PeerID)
	OnMessage(peer domain.PeerID, ch Channel, data []byte)
}

// PeerConn is one negotiated connection toward a remote peer.
type PeerConn interface {
	// CreateOffer creates the offer and applies it as local description.
	CreateOffer() (Description, error)
	// AcceptOffer applies a remote offer and returns the applied local answer.
	AcceptOffer(offer Description) (Description, error)
	// ApplyAnswer applies the remote answer to a previously created offer.
	ApplyAnswer(answer Description) error
	// AddCandidate applies a remote candidate; requires a remote description.
	AddCandidate(c Candidate) error
	// Send writes one packet on ch. Best effort for unreliable channels.
	Send(ch Channel, data []byte) error
	Close() error
}

// PeerConnector creates PeerConns; the topology manager owns the results.
type PeerConnector interface {
	Connect(peer domain.PeerID, up PeerUpcalls) (PeerConn, error)
}
