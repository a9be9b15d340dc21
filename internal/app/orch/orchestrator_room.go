package orch

import (
	"time"

	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
)

func (o *Orchestrator) connect() {
	o.signal.SetLobby(o.lobby, o.mesh)
	o.retryAt = time.Time{}
	o.deadline = time.Time{}
	if o.cfg.ConnectTimeout > 0 {
		o.deadline = o.now().Add(o.cfg.ConnectTimeout)
	}
	o.logger.Info().
		Str("url", o.url).
		Str("lobby", string(o.lobby)).
		Bool("mesh", o.mesh).
		Int("attempt", o.attempts).
		Msg("connecting")
	o.setState(StateConnecting)
	o.signal.Connect(o.url)
}

func (o *Orchestrator) onSignal(ev signaling.Event) {
	o.topo.HandleEvent(ev)

	switch e := ev.(type) {
	case signaling.Connected:
		if o.topo.LocalID() == domain.AuthorityID {
			o.established()
		}
	case signaling.LobbyJoined:
		// A retry rejoins the lobby the endpoint handed out.
		o.lobby = e.Lobby
	}
}

func (o *Orchestrator) established() {
	if o.state != StateConnecting {
		return
	}
	o.deadline = time.Time{}
	o.attempts = 0
	o.setState(StateConnected)
}

// aloneInMesh is true for a mesh member whose lobby announced nobody else,
// for example after every earlier member left.
func (o *Orchestrator) aloneInMesh() bool {
	return o.topo.Joined() && o.topo.Topology() == domain.TopologyMesh && o.topo.AnnouncedCount() == 0
}

// fail handles a session failure once: it tears down and either schedules
// a reconnect or gives up.
func (o *Orchestrator) fail(reason string) {
	if o.state != StateConnecting && o.state != StateConnected {
		return
	}
	o.logger.Warn().Str("reason", reason).Int("attempt", o.attempts).Msg("session failed")
	o.teardown()

	if o.attempts >= o.cfg.ReconnectAttempts {
		o.setState(StateFailed)
		return
	}
	o.attempts++
	o.retryAt = o.now().Add(o.cfg.ReconnectBackoff)
	o.setState(StateRetrying)
}

func (o *Orchestrator) teardown() {
	o.relay.Uninstall()
	o.transport = nil
	o.topo.Close()
	o.signal.Close()
	o.voice.Close()
	o.deadline = time.Time{}
}
