package signaling

import (
	"fmt"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

// Event is one of the signaling events below. Exactly one event is produced
// per accepted frame.
type Event interface {
	eventType() string
}

type (
	LobbyJoined struct {
		Lobby domain.LobbyName
	}
	// Connected carries the id assigned by the endpoint.
	Connected struct {
		ID   domain.PeerID
		Mesh bool
	}
	Disconnected struct {
		Code   int
		Reason string
	}
	PeerConnected struct {
		ID domain.PeerID
	}
	PeerDisconnected struct {
		ID domain.PeerID
	}
	OfferReceived struct {
		ID  domain.PeerID
		SDP string
	}
	AnswerReceived struct {
		ID  domain.PeerID
		SDP string
	}
	CandidateReceived struct {
		ID        domain.PeerID
		Candidate core.Candidate
	}
	LobbySealed struct{}
)

func (LobbyJoined) eventType() string       { return "lobby_joined" }
func (Connected) eventType() string         { return "connected" }
func (Disconnected) eventType() string      { return "disconnected" }
func (PeerConnected) eventType() string     { return "peer_connected" }
func (PeerDisconnected) eventType() string  { return "peer_disconnected" }
func (OfferReceived) eventType() string     { return "offer" }
func (AnswerReceived) eventType() string    { return "answer" }
func (CandidateReceived) eventType() string { return "candidate" }
func (LobbySealed) eventType() string       { return "lobby_sealed" }

// EventName is used for logging.
func EventName(e Event) string { return e.eventType() }

// Decode maps an accepted frame to its event. A frame that names an invalid
// peer id or carries a bad candidate payload yields ErrMalformed and no event.
func Decode(f Frame) (Event, error) {
	switch f.Type {
	case MsgJoin:
		return LobbyJoined{Lobby: domain.LobbyName(f.Data)}, nil
	case MsgSeal:
		return LobbySealed{}, nil
	}

	id, err := domain.ParsePeerID(f.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s id %d", ErrMalformed, f.Type, f.ID)
	}

	switch f.Type {
	case MsgID:
		return Connected{ID: id, Mesh: f.Data == "true"}, nil
	case MsgPeerConnect:
		return PeerConnected{ID: id}, nil
	case MsgPeerDisconnect:
		return PeerDisconnected{ID: id}, nil
	case MsgOffer:
		return OfferReceived{ID: id, SDP: f.Data}, nil
	case MsgAnswer:
		return AnswerReceived{ID: id, SDP: f.Data}, nil
	case MsgCandidate:
		c, err := ParseCandidate(f.Data)
		if err != nil {
			return nil, err
		}
		return CandidateReceived{ID: id, Candidate: c}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformed, int(f.Type))
	}
}
