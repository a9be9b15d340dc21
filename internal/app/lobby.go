package app

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

var ErrLobbySealed = errors.New("lobby is sealed")

// Lobby holds the membership of one rendezvous group. Ids are handed out
// sequentially, so the creator is always AuthorityID.
type Lobby struct {
	mu      sync.RWMutex
	meta    domain.Lobby
	members map[domain.PeerID]core.MemberSession
	nextID  domain.PeerID
}

func NewLobby(name domain.LobbyName, mesh bool) *Lobby {
	return &Lobby{
		meta:    domain.Lobby{Name: name, Mesh: mesh},
		members: make(map[domain.PeerID]core.MemberSession),
		nextID:  domain.AuthorityID,
	}
}

func (l *Lobby) Meta() domain.Lobby {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.meta
}

func (l *Lobby) AddMember(token string, sig core.SignalConnection) (core.MemberSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.meta.Sealed {
		return nil, ErrLobbySealed
	}
	id := l.nextID
	l.nextID++
	ms := core.NewMemberSession(domain.NewMember(id, token, id == domain.AuthorityID), sig)
	l.members[id] = ms
	return ms, nil
}

func (l *Lobby) RemoveMember(id domain.PeerID) (core.MemberSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ms, ok := l.members[id]
	if ok {
		delete(l.members, id)
	}
	return ms, ok
}

func (l *Lobby) Member(id domain.PeerID) (core.MemberSession, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ms, ok := l.members[id]
	return ms, ok
}

// Members returns a snapshot ordered by id.
func (l *Lobby) Members() []core.MemberSession {
	l.mu.RLock()
	out := make([]core.MemberSession, 0, len(l.members))
	for _, ms := range l.members {
		out = append(out, ms)
	}
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b core.MemberSession) int {
		return int(a.Meta().ID - b.Meta().ID)
	})
	return out
}

func (l *Lobby) MemberCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.members)
}

func (l *Lobby) Seal() {
	l.mu.Lock()
	l.meta.Sealed = true
	l.mu.Unlock()
}
