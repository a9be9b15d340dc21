// Package voice carries positioned raw PCM between peers and plays it back
// through per-speaker emitters attenuated by listener distance.
package voice

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/dkeye/spatialvoice/internal/domain"
)

// HeaderSize is the position prefix: three little-endian float32.
const HeaderSize = 12

var ErrShortFrame = errors.New("voice frame shorter than position header")

// EncodeFrame lays out x, y, z followed by the PCM bytes. No length prefix.
func EncodeFrame(pos domain.Vec3, pcm []byte) []byte {
	b := make([]byte, HeaderSize+len(pcm))
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(pos.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(pos.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(pos.Z))
	copy(b[HeaderSize:], pcm)
	return b
}

// DecodeFrame splits a frame; audio aliases b.
func DecodeFrame(b []byte) (domain.Vec3, []byte, error) {
	if len(b) < HeaderSize {
		return domain.Vec3{}, nil, ErrShortFrame
	}
	pos := domain.Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
	return pos, b[HeaderSize:], nil
}
