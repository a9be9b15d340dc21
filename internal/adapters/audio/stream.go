package audio

import "sync"

// stream is the io.Reader an oto player pulls from. It never blocks: when no
// PCM is queued it yields silence so the player keeps running.
type stream struct {
	mu     sync.Mutex
	buf    []byte
	max    int
	closed bool
}

func newStream(maxBuffered int) *stream {
	return &stream{max: maxBuffered}
}

// Write queues pcm. The oldest bytes are dropped once max is exceeded, so a
// stalled player cannot grow latency without bound.
func (s *stream) Write(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)
	if over := len(s.buf) - s.max; s.max > 0 && over > 0 {
		over += over & 1 // stay sample aligned
		s.buf = s.buf[min(over, len(s.buf)):]
	}
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	s.mu.Unlock()
	clear(p[n:])
	return len(p), nil
}

func (s *stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.buf = nil
	s.mu.Unlock()
}
