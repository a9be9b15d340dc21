package domain

// Member represents a peer's participation meta for a lobby.
// No transport or lifecycle logic here.
type Member struct {
	ID    PeerID `json:"id"`
	Token string `json:"-"`
	Host  bool   `json:"host"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id PeerID, token string, host bool) *Member {
	return &Member{ID: id, Token: token, Host: host}
}
