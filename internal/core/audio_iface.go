package core

import "github.com/dkeye/spatialvoice/internal/domain"

// EmitterHandle refers to one positioned audio output.
type EmitterHandle uint32

// AudioOutput is the positioned emitter capability. Single-threaded: only
// the main tick may call it.
type AudioOutput interface {
	CreateEmitter() (EmitterHandle, error)
	DestroyEmitter(h EmitterHandle)
	SetEmitterPose(h EmitterHandle, pos domain.Vec3)
	SetEmitterVolume(h EmitterHandle, db float32)
	PlayEmitterBuffer(h EmitterHandle, pcm []byte, sampleRate int) error
}

// CaptureDevice delivers 16-bit mono PCM buffers on its own goroutine.
type CaptureDevice interface {
	Start(onData func(pcm []byte)) error
	Stop() error
}

// PoseSource returns the local listener pose; ok is false while unavailable.
type PoseSource interface {
	LocalPose() (pos domain.Vec3, ok bool)
}
