package orch

import (
	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

func (o *Orchestrator) TransportInstalled(t core.Transport) {
	o.transport = t
	o.relay.Install(t)
}

func (o *Orchestrator) TransportRemoved() {
	o.relay.Uninstall()
	o.transport = nil
	if err := o.voice.StopCapture(); err != nil {
		o.logger.Warn().Err(err).Msg("stop capture")
	}
}

func (o *Orchestrator) PeerJoined(id domain.PeerID) {
	// A star host relays and never speaks, so it gets no emitter.
	if o.transport == nil || o.transport.Topology() != domain.TopologyStarClient || id != domain.AuthorityID {
		o.voice.PeerJoined(id)
	}
	o.established()
	if o.transport != nil && !o.transport.IsAuthority() {
		if err := o.voice.StartCapture(); err != nil {
			o.logger.Error().Err(err).Msg("voice disabled")
		}
	}
}

func (o *Orchestrator) PeerLeft(id domain.PeerID) {
	o.voice.PeerLeft(id)
}

func (o *Orchestrator) SpeakerLeft(id domain.PeerID) {
	o.voice.PeerLeft(id)
}

func (o *Orchestrator) TopologyReset(reason string) {
	o.fail(reason)
}

func (o *Orchestrator) NegotiationFailed(id domain.PeerID) {
	o.fail("negotiation with " + id.String() + " failed")
}
