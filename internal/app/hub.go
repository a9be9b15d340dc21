package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Close codes sent by the endpoint.
const (
	CloseNormal       = 1000
	CloseProtocol     = 4000
	CloseSealed       = 4001
	CloseBackpressure = 4002
	CloseRateLimited  = 4003
)

const (
	ReasonNoLobby       = "Have not joined lobby"
	ReasonAlreadyJoined = "Already in a lobby"
	ReasonSealed        = "Lobby is sealed"
	ReasonNotHost       = "Only host can seal the lobby"
	ReasonHostLeft      = "Host has disconnected"
	ReasonSealComplete  = "Seal complete"
	ReasonSlow          = "Send queue full"
	ReasonRateLimited   = "Too many join attempts"
)

var ErrSendBackpressure = errors.New("backpressure")

type HubConfig struct {
	JoinTimeout      time.Duration
	SealCloseTimeout time.Duration
}

func DefaultHubConfig() HubConfig {
	return HubConfig{JoinTimeout: 10 * time.Second, SealCloseTimeout: 10 * time.Second}
}

// Hub is the lobby rendezvous: it assigns ids, announces peers to each other
// and relays negotiation frames. It never looks inside offers or candidates.
type Hub struct {
	Registry *Registry
	Lobbies  *LobbyManager
	Policy   Policy

	cfg    HubConfig
	logger zerolog.Logger
	mu     sync.Mutex
}

func NewHub(cfg HubConfig, policy Policy) *Hub {
	return &Hub{
		Registry: NewRegistry(),
		Lobbies:  NewLobbyManager(),
		Policy:   policy,
		cfg:      cfg,
		logger:   log.With().Str("module", "app.hub").Logger(),
	}
}

// Connect registers a fresh signaling connection. It is closed unless it
// joins a lobby within the join timeout.
func (h *Hub) Connect(id ConnID, token string, sig core.SignalConnection, cancel func()) {
	h.Registry.Bind(id, token, sig, cancel)
	if h.cfg.JoinTimeout <= 0 {
		return
	}
	time.AfterFunc(h.cfg.JoinTimeout, func() {
		e, ok := h.Registry.Get(id)
		if ok && !e.Joined() {
			h.logger.Info().Str("conn", string(id)).Msg("join timeout")
			e.Signal.CloseWith(CloseProtocol, ReasonNoLobby)
		}
	})
}

// Join handles JOIN. An empty name creates a new lobby with a generated
// name; an unknown name creates that lobby in the requested mode.
func (h *Hub) Join(id ConnID, mesh bool, name domain.LobbyName) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.Registry.Get(id)
	if !ok {
		return
	}
	if e.Joined() {
		e.Signal.CloseWith(CloseProtocol, ReasonAlreadyJoined)
		return
	}
	name = name.Clamp()
	if name == "" {
		name = domain.NewLobbyName()
	}

	lobby, created := h.Lobbies.GetOrCreate(name, mesh)
	ms, err := lobby.AddMember(e.Token, e.Signal)
	if err != nil {
		h.logger.Info().Str("conn", string(id)).Str("lobby", string(name)).Msg("join rejected, sealed")
		e.Signal.CloseWith(CloseSealed, ReasonSealed)
		return
	}
	h.Registry.SetMember(id, name, ms)

	meta := lobby.Meta()
	newID := ms.Meta().ID
	h.logger.Info().
		Str("lobby", string(name)).
		Bool("created", created).
		Bool("mesh", meta.Mesh).
		Str("peer", newID.String()).
		Msg("join")

	meshFlag := "false"
	if meta.Mesh {
		meshFlag = "true"
	}
	h.send(lobby, ms, signaling.Frame{Type: signaling.MsgID, ID: int(newID), Data: meshFlag})
	h.send(lobby, ms, signaling.Frame{Type: signaling.MsgJoin, Data: string(name)})

	for _, other := range lobby.Members() {
		otherID := other.Meta().ID
		if otherID == newID {
			continue
		}
		if !meta.Mesh && otherID != domain.AuthorityID {
			continue
		}
		h.send(lobby, other, signaling.Frame{Type: signaling.MsgPeerConnect, ID: int(newID)})
		h.send(lobby, ms, signaling.Frame{Type: signaling.MsgPeerConnect, ID: int(otherID)})
	}
}

// Relay forwards OFFER, ANSWER and CANDIDATE to f.ID with the id rewritten
// to the sender.
func (h *Hub) Relay(id ConnID, f signaling.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.Registry.Get(id)
	if !ok || !e.Joined() {
		h.logger.Warn().Str("conn", string(id)).Str("type", f.Type.String()).Msg("relay before join")
		return
	}
	lobby, ok := h.Lobbies.Get(e.Lobby)
	if !ok {
		return
	}
	dest, ok := lobby.Member(domain.PeerID(f.ID))
	if !ok {
		h.logger.Debug().Str("lobby", string(e.Lobby)).Int("dest", f.ID).Msg("relay to unknown peer dropped")
		return
	}
	f.ID = int(e.Member.Meta().ID)
	h.send(lobby, dest, f)
}

// Seal handles SEAL from the host: everyone is told, and the endpoint drops
// all connections after the seal close timeout.
func (h *Hub) Seal(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.Registry.Get(id)
	if !ok || !e.Joined() {
		return
	}
	if !e.Member.Meta().Host {
		e.Signal.CloseWith(CloseProtocol, ReasonNotHost)
		return
	}
	lobby, ok := h.Lobbies.Get(e.Lobby)
	if !ok || lobby.Meta().Sealed {
		return
	}
	lobby.Seal()
	h.logger.Info().Str("lobby", string(e.Lobby)).Msg("lobby sealed")
	for _, ms := range lobby.Members() {
		h.send(lobby, ms, signaling.Frame{Type: signaling.MsgSeal})
	}

	time.AfterFunc(h.cfg.SealCloseTimeout, func() {
		for _, ms := range lobby.Members() {
			ms.Signal().CloseWith(CloseNormal, ReasonSealComplete)
		}
	})
}

// Disconnect is called once a connection's read side has ended.
func (h *Hub) Disconnect(id ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.Registry.Unbind(id)
	if !ok {
		return
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	if !e.Joined() {
		return
	}
	lobby, ok := h.Lobbies.Get(e.Lobby)
	if !ok {
		return
	}
	leaving := e.Member.Meta()
	lobby.RemoveMember(leaving.ID)
	meta := lobby.Meta()

	switch {
	case meta.Sealed:
	case !meta.Mesh && leaving.Host:
		h.logger.Info().Str("lobby", string(meta.Name)).Msg("host left, closing lobby")
		for _, ms := range lobby.Members() {
			ms.Signal().CloseWith(CloseProtocol, ReasonHostLeft)
		}
	default:
		// Star clients hear it too: they play relayed voice from the leaving
		// peer without holding a session to it.
		for _, ms := range lobby.Members() {
			h.send(lobby, ms, signaling.Frame{Type: signaling.MsgPeerDisconnect, ID: int(leaving.ID)})
		}
	}

	if lobby.MemberCount() == 0 || (!meta.Mesh && leaving.Host) {
		h.Lobbies.Remove(meta.Name)
		h.logger.Info().Str("lobby", string(meta.Name)).Msg("lobby removed")
	}
}

func (h *Hub) send(lobby *Lobby, to core.MemberSession, f signaling.Frame) {
	b, err := signaling.EncodeFrame(f)
	if err != nil {
		h.logger.Error().Err(err).Msg("encode frame")
		return
	}
	err = to.Signal().TrySend(b)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrSendBackpressure) || h.Policy == nil {
		h.logger.Debug().Err(err).Str("peer", to.Meta().ID.String()).Msg("send dropped")
		return
	}
	switch h.Policy.OnBackPressure(lobby, to) {
	case KickMember:
		h.logger.Warn().Str("peer", to.Meta().ID.String()).Msg("kicking slow member")
		to.Signal().CloseWith(CloseBackpressure, ReasonSlow)
	case DropFrame, NoAction:
	}
}
