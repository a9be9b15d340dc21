package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/spatialvoice/internal/domain"
)

type LobbyInfo struct {
	Name        domain.LobbyName `json:"name"`
	Mesh        bool             `json:"mesh"`
	Sealed      bool             `json:"sealed"`
	MemberCount int              `json:"members"`
}

type LobbyManager struct {
	mu      sync.RWMutex
	lobbies map[domain.LobbyName]*Lobby
}

func NewLobbyManager() *LobbyManager {
	return &LobbyManager{lobbies: make(map[domain.LobbyName]*Lobby)}
}

// GetOrCreate returns the lobby called name, creating it with the given
// mode when absent. The mode of an existing lobby never changes.
func (m *LobbyManager) GetOrCreate(name domain.LobbyName, mesh bool) (*Lobby, bool) {
	m.mu.RLock()
	lobby, ok := m.lobbies[name]
	m.mu.RUnlock()
	if ok {
		return lobby, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lobby, ok = m.lobbies[name]; ok {
		return lobby, false
	}
	lobby = NewLobby(name, mesh)
	m.lobbies[name] = lobby
	return lobby, true
}

func (m *LobbyManager) Get(name domain.LobbyName) (*Lobby, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lobby, ok := m.lobbies[name]
	return lobby, ok
}

func (m *LobbyManager) List() []LobbyInfo {
	m.mu.RLock()
	out := make([]LobbyInfo, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		meta := l.Meta()
		out = append(out, LobbyInfo{Name: meta.Name, Mesh: meta.Mesh, Sealed: meta.Sealed, MemberCount: l.MemberCount()})
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b LobbyInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

func (m *LobbyManager) Remove(name domain.LobbyName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lobbies, name)
}
