package app

import (
	"context"
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/rs/zerolog/log"
)

// ConnID identifies one signaling websocket.
type ConnID string

type connEntry struct {
	Token  string
	Signal core.SignalConnection
	Lobby  domain.LobbyName
	Member core.MemberSession
	Cancel context.CancelFunc
}

func (e connEntry) Joined() bool { return e.Member != nil }

type Registry struct {
	mu    sync.RWMutex
	conns map[ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]*connEntry)}
}

func (r *Registry) Bind(id ConnID, token string, sig core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Token: token, Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound signal")
}

func (r *Registry) Get(id ConnID) (connEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok {
		return connEntry{}, false
	}
	return *e, true
}

func (r *Registry) SetMember(id ConnID, lobby domain.LobbyName, member core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Lobby = lobby
	e.Member = member
	log.Info().
		Str("module", "app.registry").
		Str("conn", string(id)).
		Str("lobby", string(lobby)).
		Str("peer", member.Meta().ID.String()).
		Msg("joined lobby")
	return true
}

func (r *Registry) Unbind(id ConnID) (connEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return connEntry{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbind signal")
	return *e, true
}

// ConnOf finds the connection carrying member id of lobby.
func (r *Registry) ConnOf(lobby domain.LobbyName, id domain.PeerID) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cid, e := range r.conns {
		if e.Lobby == lobby && e.Member != nil && e.Member.Meta().ID == id {
			return cid, true
		}
	}
	return "", false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
