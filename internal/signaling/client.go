package signaling

import (
	"context"
	"fmt"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Dialer opens the control channel.
type Dialer interface {
	Dial(ctx context.Context, url string) (core.WSConn, error)
}

type DialFunc func(ctx context.Context, url string) (core.WSConn, error)

func (f DialFunc) Dial(ctx context.Context, url string) (core.WSConn, error) { return f(ctx, url) }

// NewWebsocketDialer adapts a gorilla dialer; nil means websocket.DefaultDialer.
func NewWebsocketDialer(d *websocket.Dialer) DialFunc {
	if d == nil {
		d = websocket.DefaultDialer
	}
	return func(ctx context.Context, url string) (core.WSConn, error) {
		conn, _, err := d.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Option func(*Client)

// WithLobby configures the lobby joined automatically once the channel opens.
func WithLobby(lobby domain.LobbyName, mesh bool) Option {
	return func(c *Client) {
		c.lobby = lobby
		c.mesh = mesh
	}
}

func WithAutoJoin(enabled bool) Option { return func(c *Client) { c.autoJoin = enabled } }

func WithSendBuffer(n int) Option { return func(c *Client) { c.sendBuffer = n } }

// Client keeps the single control connection to the signaling endpoint.
//
// Connect, Close, Poll and the send methods belong to the main tick and are
// not safe for concurrent use. Network I/O happens on pump goroutines; Poll
// observes its results.
type Client struct {
	dialer      Dialer
	logger      zerolog.Logger
	sendBuffer  int
	inboxBuffer int

	autoJoin bool
	lobby    domain.LobbyName
	mesh     bool

	current   *link
	lastState State

	listeners []func(Event)
	faults    []func(error)
}

func NewClient(dialer Dialer, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		dialer:      dialer,
		logger:      logger.With().Str("module", "signaling").Logger(),
		sendBuffer:  64,
		inboxBuffer: 256,
		autoJoin:    true,
		mesh:        true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers an event listener. Listeners run on the Poll caller.
func (c *Client) Subscribe(fn func(Event)) { c.listeners = append(c.listeners, fn) }

// OnFault registers a hook for non-fatal decode faults.
func (c *Client) OnFault(fn func(error)) { c.faults = append(c.faults, fn) }

func (c *Client) SetLobby(lobby domain.LobbyName, mesh bool) {
	c.lobby = lobby
	c.mesh = mesh
}

func (c *Client) Lobby() domain.LobbyName { return c.lobby }
func (c *Client) Mesh() bool              { return c.mesh }

// Connect drops any previous channel, resets the close code and reason, and
// starts dialing in the background.
func (c *Client) Connect(url string) {
	c.Close()
	l := newLink(c.logger, c.sendBuffer, c.inboxBuffer)
	c.current = l
	c.lastState = StateConnecting
	go l.dial(c.dialer, url)
}

// Close terminates the channel. Idempotent.
func (c *Client) Close() {
	if c.current == nil {
		return
	}
	c.current.shutdown()
}

func (c *Client) State() State {
	if c.current == nil {
		return StateClosed
	}
	return c.current.State()
}

// CloseCode and CloseReason describe the last closure of the current channel.
func (c *Client) CloseCode() int {
	if c.current == nil {
		return defaultCloseCode
	}
	code, _ := c.current.closeInfo()
	return code
}

func (c *Client) CloseReason() string {
	if c.current == nil {
		return defaultCloseReason
	}
	_, reason := c.current.closeInfo()
	return reason
}

// Poll runs once per scheduler tick.
func (c *Client) Poll() {
	l := c.current
	state := c.State()

	if state != c.lastState && state == StateOpen && c.autoJoin {
		if err := c.JoinLobby(c.lobby); err != nil {
			c.logger.Warn().Err(err).Msg("auto join failed")
		}
	}

	if l != nil && !l.stoppedLocally() {
	drain:
		for {
			select {
			case data := <-l.inbox:
				c.parse(data)
			default:
				break drain
			}
		}
	}

	if state != c.lastState && state == StateClosed {
		code, reason := l.closeInfo()
		c.logger.Info().Int("code", code).Str("reason", reason).Msg("signaling disconnected")
		c.emit(Disconnected{Code: code, Reason: reason})
	}
	c.lastState = state
}

func (c *Client) parse(data []byte) {
	f, err := DecodeFrame(data)
	if err == nil {
		var ev Event
		ev, err = Decode(f)
		if err == nil {
			if joined, ok := ev.(LobbyJoined); ok {
				c.lobby = joined.Lobby
			}
			c.emit(ev)
			return
		}
	}
	c.logger.Error().Err(err).Msg("error parsing malformed message from server")
	for _, fn := range c.faults {
		fn(err)
	}
}

func (c *Client) emit(ev Event) {
	for _, fn := range c.listeners {
		fn(ev)
	}
}

// JoinLobby asks the endpoint to join (or create) lobby. The id field
// requests the topology: 0 for mesh, 1 for star.
func (c *Client) JoinLobby(lobby domain.LobbyName) error {
	id := JoinStar
	if c.mesh {
		id = JoinMesh
	}
	return c.send(MsgJoin, id, string(lobby))
}

// Seal asks the endpoint to seal the lobby. Only the host may seal.
func (c *Client) Seal() error { return c.send(MsgSeal, 0, "") }

func (c *Client) SendOffer(id domain.PeerID, sdp string) error {
	return c.send(MsgOffer, int(id), sdp)
}

func (c *Client) SendAnswer(id domain.PeerID, sdp string) error {
	return c.send(MsgAnswer, int(id), sdp)
}

func (c *Client) SendCandidate(id domain.PeerID, cand core.Candidate) error {
	return c.send(MsgCandidate, int(id), FormatCandidate(cand))
}

func (c *Client) send(t MessageType, id int, data string) error {
	if c.current == nil {
		return ErrNotConnected
	}
	b, err := EncodeFrame(Frame{Type: t, ID: id, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	return c.current.trySend(b)
}
