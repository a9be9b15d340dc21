package voice

import (
	"sync/atomic"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/rs/zerolog"
)

type transportRef struct {
	t core.Transport
}

// Relay moves voice frames over the installed transport. The authority fans
// inbound frames out to everyone else; other peers queue them for playback.
//
// The position prefix and the origin claim are not verified.
type Relay struct {
	logger    zerolog.Logger
	queue     *FrameQueue
	transport atomic.Pointer[transportRef]
}

func NewRelay(queue *FrameQueue, logger zerolog.Logger) *Relay {
	return &Relay{
		logger: logger.With().Str("module", "voice_relay").Logger(),
		queue:  queue,
	}
}

// Install makes t the active transport and subscribes to the voice channel.
func (r *Relay) Install(t core.Transport) {
	if old := r.transport.Swap(&transportRef{t: t}); old != nil && old.t != t {
		old.t.OnReceive(core.VoiceChannel, nil)
	}
	t.OnReceive(core.VoiceChannel, r.HandleInbound)
	r.logger.Info().
		Str("local", t.LocalID().String()).
		Str("topology", t.Topology().String()).
		Msg("transport installed")
}

func (r *Relay) Uninstall() {
	old := r.transport.Swap(nil)
	if old == nil {
		return
	}
	old.t.OnReceive(core.VoiceChannel, nil)
	r.logger.Info().Msg("transport removed")
}

// Transport returns the active transport or nil.
func (r *Relay) Transport() core.Transport {
	ref := r.transport.Load()
	if ref == nil {
		return nil
	}
	return ref.t
}

// CanSend reports whether outbound voice would go anywhere right now.
func (r *Relay) CanSend() bool {
	t := r.Transport()
	return t != nil && t.Connected() && !t.IsAuthority()
}

// Send is called from the capture goroutine. Errors are swallowed.
func (r *Relay) Send(pos domain.Vec3, pcm []byte) {
	t := r.Transport()
	if t == nil || !t.Connected() || t.IsAuthority() {
		return
	}
	frame := EncodeFrame(pos, pcm)

	if t.Topology() == domain.TopologyStarClient {
		if err := t.Send(domain.AuthorityID, core.VoiceChannel, frame); err != nil {
			r.logger.Debug().Err(err).Msg("voice send to authority failed")
		}
		return
	}
	// Mesh has no authority, every peer gets it directly.
	for _, id := range t.Peers() {
		if err := t.Send(id, core.VoiceChannel, frame); err != nil {
			r.logger.Debug().Err(err).Str("peer", id.String()).Msg("voice send failed")
		}
	}
}

// HandleInbound runs on transport delivery goroutines.
func (r *Relay) HandleInbound(origin domain.PeerID, payload []byte) {
	pos, audio, err := DecodeFrame(payload)
	if err != nil {
		r.logger.Debug().Err(err).Str("peer", origin.String()).Int("len", len(payload)).Msg("dropping voice frame")
		return
	}

	t := r.Transport()
	if t != nil && t.IsAuthority() {
		for _, id := range t.Peers() {
			if id == origin {
				continue
			}
			if err := t.Forward(origin, id, core.VoiceChannel, payload); err != nil {
				r.logger.Debug().Err(err).Str("peer", id.String()).Msg("voice forward failed")
			}
		}
		return
	}

	r.queue.Push(domain.VoiceFrame{
		Sender:   origin,
		Position: pos,
		Audio:    append([]byte(nil), audio...),
	})
}
