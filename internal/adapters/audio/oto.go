package audio

import (
	"errors"
	"fmt"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/voice"
	"github.com/hajimehoshi/oto/v2"
	"github.com/rs/zerolog"
)

var ErrUnknownEmitter = errors.New("unknown emitter")

// maxBufferedMs bounds per-emitter latency.
const maxBufferedMs = 500

type otoEmitter struct {
	player oto.Player
	stream *stream
	pose   domain.Vec3
	rs     *resampler
	rsRate int
}

// OtoOutput plays each emitter through its own oto player on a shared mono
// 16-bit context. Pose is recorded but not spatialized; distance is applied
// through volume.
type OtoOutput struct {
	ctx        *oto.Context
	sampleRate int
	logger     zerolog.Logger

	next     core.EmitterHandle
	emitters map[core.EmitterHandle]*otoEmitter
}

var _ core.AudioOutput = (*OtoOutput)(nil)

func NewOtoOutput(sampleRate int, logger zerolog.Logger) (*OtoOutput, error) {
	ctx, ready, err := oto.NewContext(sampleRate, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("oto.NewContext: %w", err)
	}
	<-ready
	return &OtoOutput{
		ctx:        ctx,
		sampleRate: sampleRate,
		logger:     logger.With().Str("module", "audio_out").Logger(),
		emitters:   make(map[core.EmitterHandle]*otoEmitter),
	}, nil
}

func (o *OtoOutput) CreateEmitter() (core.EmitterHandle, error) {
	s := newStream(o.sampleRate * 2 * maxBufferedMs / 1000)
	player := o.ctx.NewPlayer(s)
	player.Play()
	if err := player.Err(); err != nil {
		return 0, err
	}
	o.next++
	o.emitters[o.next] = &otoEmitter{player: player, stream: s}
	return o.next, nil
}

func (o *OtoOutput) DestroyEmitter(h core.EmitterHandle) {
	e, ok := o.emitters[h]
	if !ok {
		return
	}
	delete(o.emitters, h)
	e.stream.Close()
	if err := e.player.Close(); err != nil {
		o.logger.Debug().Err(err).Uint32("emitter", uint32(h)).Msg("player close")
	}
}

func (o *OtoOutput) SetEmitterPose(h core.EmitterHandle, pos domain.Vec3) {
	if e, ok := o.emitters[h]; ok {
		e.pose = pos
	}
}

func (o *OtoOutput) SetEmitterVolume(h core.EmitterHandle, db float32) {
	if e, ok := o.emitters[h]; ok {
		e.player.SetVolume(voice.DBToLinear(db))
	}
}

func (o *OtoOutput) PlayEmitterBuffer(h core.EmitterHandle, pcm []byte, sampleRate int) error {
	e, ok := o.emitters[h]
	if !ok {
		return ErrUnknownEmitter
	}
	if sampleRate != o.sampleRate {
		if e.rs == nil || e.rsRate != sampleRate {
			e.rs = newResampler(sampleRate, o.sampleRate)
			e.rsRate = sampleRate
		}
		pcm = i16ToBytes(e.rs.push(bytesToI16(pcm)))
	}
	e.stream.Write(pcm)
	return nil
}

// Close releases every player.
func (o *OtoOutput) Close() {
	for h := range o.emitters {
		o.DestroyEmitter(h)
	}
}
