// Package orch drives one voice session: it feeds signaling events into the
// topology manager, wires the resulting transport into the voice relay and
// owns the connect/reconnect state machine. Everything here runs on the
// main tick.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/dkeye/spatialvoice/internal/topology"
	"github.com/rs/zerolog"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	// StateRetrying waits out the reconnect backoff. A failure observed here
	// has already been handled.
	StateRetrying
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Signaling interface {
	Connect(url string)
	Close()
	Poll()
	Seal() error
	Subscribe(fn func(signaling.Event))
	SetLobby(lobby domain.LobbyName, mesh bool)
}

type Topology interface {
	HandleEvent(ev signaling.Event)
	Tick(now time.Time)
	Close()
	SetListener(l topology.Listener)
	LocalID() domain.PeerID
	Joined() bool
	Topology() domain.Topology
	AnnouncedCount() int
}

type Relay interface {
	Install(t core.Transport)
	Uninstall()
}

type Voice interface {
	StartCapture() error
	StopCapture() error
	Tick(dt time.Duration)
	PeerJoined(id domain.PeerID)
	PeerLeft(id domain.PeerID)
	Close()
}

type Config struct {
	TickInterval      time.Duration
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectBackoff  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval:      20 * time.Millisecond,
		ConnectTimeout:    10 * time.Second,
		ReconnectAttempts: 3,
		ReconnectBackoff:  2 * time.Second,
	}
}

type Deps struct {
	Signal   Signaling
	Topology Topology
	Relay    Relay
	Voice    Voice
	Config   Config
	Logger   zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Orchestrator struct {
	signal Signaling
	topo   Topology
	relay  Relay
	voice  Voice
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	state     State
	url       string
	lobby     domain.LobbyName
	mesh      bool
	attempts  int
	deadline  time.Time
	retryAt   time.Time
	transport core.Transport

	watchers []func(State)
	tickers  []func(now time.Time)
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		signal: d.Signal,
		topo:   d.Topology,
		relay:  d.Relay,
		voice:  d.Voice,
		cfg:    d.Config,
		logger: d.Logger.With().Str("module", "orch").Logger(),
		now:    d.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.cfg.TickInterval <= 0 {
		o.cfg.TickInterval = DefaultConfig().TickInterval
	}
	o.signal.Subscribe(o.onSignal)
	o.topo.SetListener(o)
	return o
}

func (o *Orchestrator) State() State  { return o.state }
func (o *Orchestrator) Attempts() int { return o.attempts }

// OnStateChange registers fn for every state transition.
func (o *Orchestrator) OnStateChange(fn func(State)) { o.watchers = append(o.watchers, fn) }

// OnTick registers fn to run at the end of every Tick, on the main tick.
func (o *Orchestrator) OnTick(fn func(now time.Time)) { o.tickers = append(o.tickers, fn) }

// Start drops any current session and connects to url. An empty lobby asks
// the endpoint to create one.
func (o *Orchestrator) Start(url string, lobby domain.LobbyName, mesh bool) {
	o.Stop()
	o.url = url
	o.lobby = lobby
	o.mesh = mesh
	o.attempts = 0
	o.connect()
}

// Stop tears the session down. Safe at any time.
func (o *Orchestrator) Stop() {
	o.teardown()
	o.retryAt = time.Time{}
	o.setState(StateIdle)
}

// Seal asks the endpoint to seal the lobby. Only the host may do so.
func (o *Orchestrator) Seal() error {
	return o.signal.Seal()
}

// Tick advances every component by one scheduler step.
func (o *Orchestrator) Tick(now time.Time, dt time.Duration) {
	o.signal.Poll()
	o.topo.Tick(now)
	o.voice.Tick(dt)

	switch o.state {
	case StateConnecting:
		if !o.deadline.IsZero() && !now.Before(o.deadline) {
			if o.aloneInMesh() {
				o.logger.Info().Msg("no other peers in mesh lobby")
				o.established()
			} else {
				o.fail("connect timeout")
			}
		}
	case StateRetrying:
		if !now.Before(o.retryAt) {
			o.connect()
		}
	}

	for _, fn := range o.tickers {
		fn(now)
	}
}

// Run ticks at the configured interval until ctx is done, then stops.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()
	last := o.now()
	for {
		select {
		case <-ctx.Done():
			o.Stop()
			return nil
		case <-ticker.C:
			now := o.now()
			o.Tick(now, now.Sub(last))
			last = now
		}
	}
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.logger.Info().Str("from", o.state.String()).Str("to", s.String()).Msg("state change")
	o.state = s
	for _, fn := range o.watchers {
		fn(s)
	}
}
