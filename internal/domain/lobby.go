package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxLobbyNameLen = 64

type LobbyName string

// NewLobbyName generates a name for a lobby created without one.
func NewLobbyName() LobbyName {
	return LobbyName(uuid.NewString())
}

// Clamp cuts n to at most MaxLobbyNameLen bytes without splitting a rune.
func (n LobbyName) Clamp() LobbyName {
	if len(n) <= MaxLobbyNameLen {
		return n
	}
	cut := MaxLobbyNameLen
	for cut > 0 && !utf8.RuneStart(n[cut]) {
		cut--
	}
	return n[:cut]
}

// Lobby is the meta of a rendezvous group; membership lives in app.
type Lobby struct {
	Name   LobbyName `json:"name"`
	Mesh   bool      `json:"mesh"`
	Sealed bool      `json:"sealed"`
}
