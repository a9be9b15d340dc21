package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/hajimehoshi/go-mp3"
	"github.com/rs/zerolog"
)

// BufferDuration matches a 50 ms microphone buffer.
const BufferDuration = 50 * time.Millisecond

var ErrAlreadyStarted = errors.New("capture already started")

// PCMCapture replays a 16-bit mono PCM clip in a loop, one buffer per
// BufferDuration, on its own goroutine.
type PCMCapture struct {
	pcm        []byte
	sampleRate int
	logger     zerolog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ core.CaptureDevice = (*PCMCapture)(nil)

func NewPCMCapture(pcm []byte, sampleRate int, logger zerolog.Logger) *PCMCapture {
	return &PCMCapture{
		pcm:        pcm,
		sampleRate: sampleRate,
		logger:     logger.With().Str("module", "capture").Logger(),
	}
}

// LoadMP3Capture decodes an mp3 file into a looping capture clip at
// sampleRate.
func LoadMP3Capture(path string, sampleRate int, logger zerolog.Logger) (*PCMCapture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, err := decodeMP3(f, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewPCMCapture(pcm, sampleRate, logger), nil
}

// decodeMP3 returns 16-bit mono PCM. go-mp3 always yields interleaved
// stereo.
func decodeMP3(r io.Reader, sampleRate int) ([]byte, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("MP3 decode error: %w", err)
	}
	if dec.SampleRate() <= 0 {
		return nil, errors.New("invalid MP3 sample rate")
	}
	rs := newResampler(dec.SampleRate(), sampleRate)

	var out []int16
	buf := make([]byte, 4096)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, rs.push(downmix(bytesToI16(buf[:n&^3])))...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("MP3 read error: %w", err)
			}
			break
		}
	}
	return i16ToBytes(out), nil
}

func (c *PCMCapture) bufferSize() int {
	n := c.sampleRate * 2 * int(BufferDuration) / int(time.Second)
	return n &^ 1
}

func (c *PCMCapture) Start(onData func(pcm []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return ErrAlreadyStarted
	}
	if len(c.pcm) == 0 {
		return errors.New("empty capture clip")
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(onData, c.stop, c.done)
	return nil
}

func (c *PCMCapture) loop(onData func([]byte), stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	size := c.bufferSize()
	ticker := time.NewTicker(BufferDuration)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		chunk := make([]byte, 0, size)
		for len(chunk) < size {
			n := min(size-len(chunk), len(c.pcm)-offset)
			chunk = append(chunk, c.pcm[offset:offset+n]...)
			offset = (offset + n) % len(c.pcm)
		}
		onData(chunk)
	}
}

// Stop waits for the capture goroutine to exit.
func (c *PCMCapture) Stop() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	c.logger.Debug().Msg("capture stopped")
	return nil
}
