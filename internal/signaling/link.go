package signaling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("signaling not connected")
)

type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

const (
	defaultCloseCode   = websocket.CloseNormalClosure
	defaultCloseReason = "Unknown"
	writeWait          = 5 * time.Second
)

// link is one control channel lifetime. Pumps only touch link fields, so a
// replaced link can never leak state into its successor.
type link struct {
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32
	inbox chan core.Frame
	send  chan core.Frame

	mu        sync.Mutex
	conn      core.WSConn
	code      int
	reason    string
	closeSet  bool
	localStop bool
}

func newLink(logger zerolog.Logger, sendBuffer, inboxBuffer int) *link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		inbox:  make(chan core.Frame, inboxBuffer),
		send:   make(chan core.Frame, sendBuffer),
		code:   defaultCloseCode,
		reason: defaultCloseReason,
	}
	l.state.Store(int32(StateConnecting))
	return l
}

func (l *link) State() State { return State(l.state.Load()) }

func (l *link) closeInfo() (int, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.code, l.reason
}

// setClose records why the channel closed. The first cause wins.
func (l *link) setClose(code int, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closeSet {
		return
	}
	l.closeSet = true
	l.code = code
	l.reason = reason
}

func (l *link) dial(dialer Dialer, url string) {
	conn, err := dialer.Dial(l.ctx, url)
	if err != nil {
		l.logger.Warn().Err(err).Str("url", url).Msg("dial failed")
		l.setClose(websocket.CloseAbnormalClosure, err.Error())
		l.finish()
		return
	}

	l.mu.Lock()
	if l.localStop {
		l.mu.Unlock()
		_ = conn.Close()
		l.state.Store(int32(StateClosed))
		return
	}
	l.conn = conn
	l.mu.Unlock()

	l.state.Store(int32(StateOpen))
	l.logger.Info().Str("url", url).Msg("signaling connected")

	go l.writePump()
	go l.readPump()
}

func (l *link) writePump() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case data := <-l.send:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.logger.Error().Err(err).Msg("writePump set deadline")
				l.fail(err)
				return
			}
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				l.logger.Error().Err(err).Msg("writePump write error")
				l.fail(err)
				return
			}
		}
	}
}

func (l *link) readPump() {
	defer l.finish()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				l.setClose(ce.Code, ce.Text)
			} else {
				l.setClose(websocket.CloseAbnormalClosure, err.Error())
			}
			l.logger.Debug().Err(err).Msg("readPump closing")
			return
		}
		select {
		case l.inbox <- data:
		case <-l.ctx.Done():
			return
		}
	}
}

func (l *link) fail(err error) {
	l.setClose(websocket.CloseAbnormalClosure, err.Error())
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// finish is the single place a link becomes Closed.
func (l *link) finish() {
	l.cancel()
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	l.state.Store(int32(StateClosed))
}

// shutdown is a local close. Frames still queued are discarded.
func (l *link) shutdown() {
	l.mu.Lock()
	l.localStop = true
	l.mu.Unlock()
	l.setClose(websocket.CloseNormalClosure, "closed by client")
	l.finish()
}

func (l *link) stoppedLocally() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localStop
}

func (l *link) trySend(f core.Frame) error {
	if l.State() != StateOpen {
		return ErrNotConnected
	}
	select {
	case l.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}
