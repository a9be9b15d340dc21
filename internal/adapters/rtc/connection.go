package rtc

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

var ErrChannelNotOpen = errors.New("data channel not open")

func DefaultICEServers() []string {
	return []string{"stun:stun.l.google.com:19302"}
}

// Connector creates PeerConnections sharing one pion API and configuration.
type Connector struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger zerolog.Logger
}

var _ core.PeerConnector = (*Connector)(nil)

func NewConnector(iceURLs []string, logger zerolog.Logger) *Connector {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	cfg := webrtc.Configuration{}
	if len(iceURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceURLs}}
	}
	return &Connector{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config: cfg,
		logger: logger.With().Str("module", "webrtc").Logger(),
	}
}

// Connect builds a PeerConnection toward peer with both data channels
// pre-negotiated, so neither side waits for an in-band channel open.
func (c *Connector) Connect(peer domain.PeerID, up core.PeerUpcalls) (core.PeerConn, error) {
	pc, err := c.api.NewPeerConnection(c.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	conn := &PeerConnection{
		pc:     pc,
		peer:   peer,
		up:     up,
		logger: c.logger.With().Str("peer", peer.String()).Logger(),
	}

	game, err := conn.negotiated("game", core.GameChannel, true)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	voice, err := conn.negotiated("voice", core.VoiceChannel, false)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	conn.game, conn.voice = game, voice
	conn.start()
	return conn, nil
}

// PeerConnection is one pion connection carrying the game (reliable) and
// voice (unreliable) data channels.
type PeerConnection struct {
	pc     *webrtc.PeerConnection
	peer   domain.PeerID
	up     core.PeerUpcalls
	logger zerolog.Logger

	game  *webrtc.DataChannel
	voice *webrtc.DataChannel

	opened     atomic.Int32
	openOnce   sync.Once
	closedOnce sync.Once
}

func (c *PeerConnection) negotiated(label string, ch core.Channel, reliable bool) (*webrtc.DataChannel, error) {
	negotiated := true
	id := uint16(ch)
	ordered := reliable
	init := &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	}
	if !reliable {
		var retransmits uint16
		init.MaxRetransmits = &retransmits
	}
	dc, err := c.pc.CreateDataChannel(label, init)
	if err != nil {
		return nil, fmt.Errorf("create data channel %s: %w", label, err)
	}
	dc.OnOpen(func() {
		c.logger.Debug().Str("label", label).Msg("data channel open")
		if c.opened.Add(1) == 2 {
			c.openOnce.Do(func() { c.up.OnConnected(c.peer) })
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.up.OnMessage(c.peer, ch, msg.Data)
	})
	return dc, nil
}

func (c *PeerConnection) start() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		out := core.Candidate{Mid: "0", SDP: init.Candidate}
		if init.SDPMid != nil && *init.SDPMid != "" {
			out.Mid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			out.Index = int(*init.SDPMLineIndex)
		}
		c.up.OnLocalCandidate(c.peer, out)
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.closedOnce.Do(func() { c.up.OnClosed(c.peer) })
		}
	})
}

func (c *PeerConnection) CreateOffer() (core.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return core.Description{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return core.Description{}, err
	}
	return core.Description{Type: core.DescriptionOffer, SDP: offer.SDP}, nil
}

func (c *PeerConnection) AcceptOffer(offer core.Description) (core.Description, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		return core.Description{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return core.Description{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return core.Description{}, err
	}
	return core.Description{Type: core.DescriptionAnswer, SDP: answer.SDP}, nil
}

func (c *PeerConnection) ApplyAnswer(answer core.Description) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
}

func (c *PeerConnection) AddCandidate(cand core.Candidate) error {
	mid := cand.Mid
	index := uint16(cand.Index)
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.SDP,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	})
}

func (c *PeerConnection) Send(ch core.Channel, data []byte) error {
	dc := c.game
	if ch == core.VoiceChannel {
		dc = c.voice
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.Send(data)
}

func (c *PeerConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
