// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

// PeerID is assigned by the signaling endpoint and is unique for the
// lifetime of a lobby.
type PeerID int32

// AuthorityID is the host id in star topology.
const AuthorityID PeerID = 1

var ErrInvalidPeerID = errors.New("invalid peer id")

func (id PeerID) String() string { return strconv.Itoa(int(id)) }

// Valid reports whether id is a usable (positive) peer id.
func (id PeerID) Valid() bool { return id > 0 }

// ParsePeerID converts a wire integer into a PeerID.
func ParsePeerID(v int) (PeerID, error) {
	if v <= 0 || v > int(^uint32(0)>>1) {
		return 0, ErrInvalidPeerID
	}
	return PeerID(v), nil
}
