package app

import (
	"sync"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/dkeye/spatialvoice/internal/signaling"
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []signaling.Frame
	full   bool
	closed bool
	code   int
	reason string
}

func (f *fakeSignal) TrySend(b core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return ErrSendBackpressure
	}
	fr, err := signaling.DecodeFrame(b)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) CloseWith(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed, f.code, f.reason = true, code, reason
}

func (f *fakeSignal) Close() { f.CloseWith(1000, "") }

func (f *fakeSignal) sent() []signaling.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Frame(nil), f.frames...)
}

func (f *fakeSignal) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func (f *fakeSignal) closeInfo() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.code, f.reason
}
