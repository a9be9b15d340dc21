package signal

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/gorilla/websocket"
)

var errFakeClosed = errors.New("fake ws closed")

// fakeWS feeds queued client messages to ReadMessage and records writes.
type fakeWS struct {
	in chan []byte

	mu       sync.Mutex
	out      []signaling.Frame
	closeMsg []byte
	closed   bool
	done     chan struct{}
}

func newFakeWS() *fakeWS {
	return &fakeWS{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeWS) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.done:
		return 0, nil, errFakeClosed
	}
}

func (f *fakeWS) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if mt == websocket.CloseMessage {
		f.closeMsg = append([]byte(nil), data...)
		return nil
	}
	if f.closed {
		return errFakeClosed
	}
	fr, err := signaling.DecodeFrame(data)
	if err != nil {
		return err
	}
	f.out = append(f.out, fr)
	return nil
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeWS) send(fr signaling.Frame) {
	b, _ := signaling.EncodeFrame(fr)
	f.in <- b
}

func (f *fakeWS) frames() []signaling.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signaling.Frame(nil), f.out...)
}

func (f *fakeWS) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// closeCode parses the close frame written by CloseWith.
func (f *fakeWS) closeCode() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.closeMsg) < 2 {
		return 0, ""
	}
	return int(f.closeMsg[0])<<8 | int(f.closeMsg[1]), string(f.closeMsg[2:])
}

// controlWS adds WriteControl, like *websocket.Conn, and counts deadline
// changes made on the data-frame writer.
type controlWS struct {
	*fakeWS
	deadlines int
	controls  int
}

func (c *controlWS) SetWriteDeadline(time.Time) error {
	c.mu.Lock()
	c.deadlines++
	c.mu.Unlock()
	return nil
}

func (c *controlWS) WriteControl(mt int, data []byte, _ time.Time) error {
	c.mu.Lock()
	c.controls++
	c.mu.Unlock()
	return c.fakeWS.WriteMessage(mt, data)
}
