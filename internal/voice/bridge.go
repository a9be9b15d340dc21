package voice

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/rs/zerolog"
)

var ErrDevice = errors.New("audio device failure")

type BridgeOption func(*Bridge)

func WithMaxDistance(d float32) BridgeOption { return func(b *Bridge) { b.maxDistance = d } }
func WithSampleRate(rate int) BridgeOption  { return func(b *Bridge) { b.sampleRate = rate } }

// Bridge connects the capture device and the emitter output to the relay.
// Everything except the capture callback runs on the main tick.
type Bridge struct {
	logger  zerolog.Logger
	relay   *Relay
	queue   *FrameQueue
	output  core.AudioOutput
	capture core.CaptureDevice
	pose    core.PoseSource

	maxDistance float32
	sampleRate  int

	level     LevelMeter
	capturing atomic.Bool
	emitters  map[domain.PeerID]core.EmitterHandle
}

func NewBridge(
	relay *Relay,
	queue *FrameQueue,
	output core.AudioOutput,
	capture core.CaptureDevice,
	pose core.PoseSource,
	logger zerolog.Logger,
	opts ...BridgeOption,
) *Bridge {
	b := &Bridge{
		logger:      logger.With().Str("module", "voice").Logger(),
		relay:       relay,
		queue:       queue,
		output:      output,
		capture:     capture,
		pose:        pose,
		maxDistance: DefaultMaxVoiceDistance,
		sampleRate:  SampleRate,
		emitters:    make(map[domain.PeerID]core.EmitterHandle),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StartCapture is idempotent. On device failure voice stays disabled.
func (b *Bridge) StartCapture() error {
	if !b.capturing.CompareAndSwap(false, true) {
		return nil
	}
	if b.capture == nil {
		b.capturing.Store(false)
		return fmt.Errorf("%w: no capture device", ErrDevice)
	}
	if err := b.capture.Start(b.onCapture); err != nil {
		b.capturing.Store(false)
		b.logger.Error().Err(err).Msg("failed to start voice capture")
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	b.logger.Info().Msg("started voice capture")
	return nil
}

// StopCapture is idempotent. Buffers delivered after it returns are ignored.
func (b *Bridge) StopCapture() error {
	if !b.capturing.CompareAndSwap(true, false) {
		return nil
	}
	if err := b.capture.Stop(); err != nil {
		b.logger.Error().Err(err).Msg("failed to stop voice capture")
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	b.logger.Info().Msg("stopped voice capture")
	return nil
}

func (b *Bridge) Capturing() bool { return b.capturing.Load() }

// onCapture runs on the capture device goroutine.
func (b *Bridge) onCapture(pcm []byte) {
	if !b.capturing.Load() {
		return
	}
	b.level.Observe(pcm)
	if !b.relay.CanSend() {
		return
	}
	pos, ok := b.pose.LocalPose()
	if !ok {
		return
	}
	b.relay.Send(pos, pcm)
}

// Tick plays every queued frame in arrival order, then decays the meter.
func (b *Bridge) Tick(dt time.Duration) {
	for _, f := range b.queue.Drain() {
		b.play(f)
	}
	b.level.Decay(float32(dt.Seconds()) * InputLevelDecay)
}

func (b *Bridge) play(f domain.VoiceFrame) {
	h, err := b.emitterFor(f.Sender)
	if err != nil {
		b.logger.Warn().Err(err).Str("peer", f.Sender.String()).Msg("create emitter failed")
		return
	}
	b.output.SetEmitterPose(h, f.Position)
	if local, ok := b.pose.LocalPose(); ok {
		a := Attenuation(local.Distance(f.Position), b.maxDistance)
		b.output.SetEmitterVolume(h, LinearToDB(a))
	}
	if err := b.output.PlayEmitterBuffer(h, f.Audio, b.sampleRate); err != nil {
		b.logger.Debug().Err(err).Str("peer", f.Sender.String()).Msg("play failed")
	}
}

func (b *Bridge) emitterFor(id domain.PeerID) (core.EmitterHandle, error) {
	if h, ok := b.emitters[id]; ok {
		return h, nil
	}
	h, err := b.output.CreateEmitter()
	if err != nil {
		return 0, err
	}
	b.emitters[id] = h
	b.logger.Info().Str("peer", id.String()).Uint32("emitter", uint32(h)).Msg("created voice emitter")
	return h, nil
}

func (b *Bridge) PeerJoined(id domain.PeerID) {
	if _, err := b.emitterFor(id); err != nil {
		b.logger.Warn().Err(err).Str("peer", id.String()).Msg("create emitter failed")
	}
}

func (b *Bridge) PeerLeft(id domain.PeerID) {
	h, ok := b.emitters[id]
	if !ok {
		return
	}
	delete(b.emitters, id)
	b.output.DestroyEmitter(h)
}

func (b *Bridge) ActiveSpeakerCount() int { return len(b.emitters) }
func (b *Bridge) InputLevel() float32     { return b.level.Load() }
func (b *Bridge) VoiceRange() float32     { return b.maxDistance }

// Close stops capture, frees every emitter and drops queued frames.
func (b *Bridge) Close() {
	if err := b.StopCapture(); err != nil {
		b.logger.Warn().Err(err).Msg("stop capture on close")
	}
	for id, h := range b.emitters {
		b.output.DestroyEmitter(h)
		delete(b.emitters, id)
	}
	b.queue.Drain()
	b.level.Reset()
}
