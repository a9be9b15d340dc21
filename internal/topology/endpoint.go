package topology

import (
	"sync/atomic"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/domain"
)

type EndpointState int32

const (
	EndpointOk EndpointState = iota
	EndpointDead
)

// endpoint is one established link in the PeerSet.
type endpoint struct {
	peer  domain.PeerID
	conn  core.PeerConn
	state atomic.Int32 // Zero by default (EndpointOk)
}

func newEndpoint(peer domain.PeerID, conn core.PeerConn) *endpoint {
	return &endpoint{peer: peer, conn: conn}
}

func (e *endpoint) State() EndpointState {
	return EndpointState(e.state.Load())
}

func (e *endpoint) MarkDead() {
	e.state.Store(int32(EndpointDead))
}
