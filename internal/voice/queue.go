package voice

import (
	"sync"

	"github.com/dkeye/spatialvoice/internal/domain"
)

// FrameQueue is a multi-producer FIFO drained whole by the main tick.
type FrameQueue struct {
	mu     sync.Mutex
	frames []domain.VoiceFrame
}

func (q *FrameQueue) Push(f domain.VoiceFrame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	q.mu.Unlock()
}

// Drain returns everything queued so far in enqueue order.
func (q *FrameQueue) Drain() []domain.VoiceFrame {
	q.mu.Lock()
	out := q.frames
	q.frames = nil
	q.mu.Unlock()
	return out
}

func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
