package voice

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// InputLevelDecay is how fast the meter falls toward zero, per second of
// tick time and per empty capture buffer.
const InputLevelDecay = 0.1

// LevelMeter is a peak-hold average-amplitude meter. Written by the capture
// goroutine and read or decayed by the main tick without locks.
type LevelMeter struct {
	bits atomic.Uint32
}

func (m *LevelMeter) Load() float32 {
	return math.Float32frombits(m.bits.Load())
}

func (m *LevelMeter) update(fn func(float32) float32) {
	for {
		old := m.bits.Load()
		next := math.Float32bits(fn(math.Float32frombits(old)))
		if m.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Observe folds one 16-bit little-endian mono buffer into the meter.
func (m *LevelMeter) Observe(pcm []byte) {
	n := len(pcm) / 2
	if n == 0 {
		m.Decay(InputLevelDecay)
		return
	}
	var sum float32
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		v := float32(s) / 32768
		if v < 0 {
			v = -v
		}
		sum += v
	}
	avg := sum / float32(n)
	m.update(func(cur float32) float32 { return max(cur, avg) })
}

// Decay moves the level toward zero by step.
func (m *LevelMeter) Decay(step float32) {
	m.update(func(cur float32) float32 { return max(cur-step, 0) })
}

func (m *LevelMeter) Reset() { m.bits.Store(0) }
