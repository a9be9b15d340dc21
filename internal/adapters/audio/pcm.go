package audio

import "encoding/binary"

func bytesToI16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func i16ToBytes(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// downmix averages interleaved stereo pairs.
func downmix(stereo []int16) []int16 {
	mono := make([]int16, len(stereo)/2)
	for i := 0; i+1 < len(stereo); i += 2 {
		v := int32(stereo[i]) + int32(stereo[i+1])
		mono[i/2] = int16(v / 2)
	}
	return mono
}

// resampler is a streaming linear interpolator.
type resampler struct {
	buf  []int16
	pos  float64 // fractional read head within buf
	step float64 // srcRate / dstRate
}

func newResampler(srcRate, dstRate int) *resampler {
	return &resampler{step: float64(srcRate) / float64(dstRate)}
}

func (r *resampler) push(in []int16) []int16 {
	if r.step == 1 {
		return in
	}
	r.buf = append(r.buf, in...)
	if len(r.buf) < 2 {
		return nil
	}
	out := make([]int16, 0, int(float64(len(r.buf))/r.step)+1)
	for {
		i := int(r.pos)
		if i+1 >= len(r.buf) {
			break
		}
		frac := r.pos - float64(i)
		s0 := float64(r.buf[i])
		s1 := float64(r.buf[i+1])
		v := s0 + (s1-s0)*frac
		out = append(out, int16(min(max(v, -32768), 32767)))
		r.pos += r.step
	}
	// keep one sample of lookahead
	if drop := int(r.pos); drop > 0 {
		if drop >= len(r.buf) {
			r.buf = r.buf[:0]
			r.pos = 0
		} else {
			r.buf = r.buf[drop:]
			r.pos -= float64(drop)
		}
	}
	return out
}
