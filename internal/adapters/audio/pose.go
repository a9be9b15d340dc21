package audio

import (
	"sync"

	"github.com/dkeye/spatialvoice/internal/domain"
)

// StaticPose is a listener pose set from configuration or by the host app.
type StaticPose struct {
	mu  sync.RWMutex
	pos domain.Vec3
	ok  bool
}

func NewStaticPose(pos domain.Vec3) *StaticPose {
	return &StaticPose{pos: pos, ok: true}
}

func (p *StaticPose) Set(pos domain.Vec3) {
	p.mu.Lock()
	p.pos, p.ok = pos, true
	p.mu.Unlock()
}

// Clear makes the pose unavailable.
func (p *StaticPose) Clear() {
	p.mu.Lock()
	p.ok = false
	p.mu.Unlock()
}

func (p *StaticPose) LocalPose() (domain.Vec3, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos, p.ok
}
