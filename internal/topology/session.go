package topology

import (
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

type SessionState int

const (
	SessionUnseen SessionState = iota
	SessionNegotiating
	SessionEstablished
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionNegotiating:
		return "negotiating"
	case SessionEstablished:
		return "established"
	case SessionClosed:
		return "closed"
	default:
		return "unseen"
	}
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// RoleFor applies the tie-break: the lower id makes the offer.
func RoleFor(local, remote domain.PeerID) Role {
	if local < remote {
		return RoleInitiator
	}
	return RoleResponder
}

// Session is the negotiation state toward one remote peer. Owned by the
// Manager; only the main tick touches it.
type Session struct {
	peer    domain.PeerID
	role    Role
	state   SessionState
	conn    core.PeerConn
	started time.Time

	local     *core.Description
	remote    *core.Description
	connected bool

	localCandidates []core.Candidate
	pendingRemote   []core.Candidate
}

func (s *Session) Peer() domain.PeerID { return s.peer }
func (s *Session) Role() Role          { return s.role }
func (s *Session) State() SessionState { return s.state }

func (s *Session) LocalDescription() (core.Description, bool) {
	if s.local == nil {
		return core.Description{}, false
	}
	return *s.local, true
}

func (s *Session) RemoteDescription() (core.Description, bool) {
	if s.remote == nil {
		return core.Description{}, false
	}
	return *s.remote, true
}

func (s *Session) LocalCandidates() []core.Candidate {
	return append([]core.Candidate(nil), s.localCandidates...)
}

// PendingRemoteCandidates are candidates waiting for the remote description.
func (s *Session) PendingRemoteCandidates() int { return len(s.pendingRemote) }

func (s *Session) ready() bool {
	return s.state == SessionNegotiating && s.local != nil && s.remote != nil && s.connected
}
