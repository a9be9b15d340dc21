package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/spatialvoice/internal/app"
	"github.com/dkeye/spatialvoice/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("connection closed")

type ControllerConfig struct {
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

type SignalWSController struct {
	Hub     *app.Hub
	Limiter *JoinRateLimiter
	cfg     ControllerConfig
}

func NewSignalWSController(hub *app.Hub, limiter *JoinRateLimiter, cfg ControllerConfig) *SignalWSController {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	return &SignalWSController{Hub: hub, Limiter: limiter, cfg: cfg}
}

type WsSignalConn struct {
	conn core.WSConn
	send chan core.Frame
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(conn core.WSConn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: conn,
		send: make(chan core.Frame, buffer),
		done: make(chan struct{}),
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return app.ErrSendBackpressure
	}
	return nil
}

// CloseWith queues a close frame carrying code and reason and closes the
// socket once it has been written.
func (c *WsSignalConn) CloseWith(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if p, ok := c.conn.(controlWriter); ok {
		_ = p.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	} else {
		_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	}
	_ = c.conn.Close()
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}
	ctl.Serve(ctx, token, ws)
}

// Serve runs the pumps of an upgraded connection.
func (ctl *SignalWSController) Serve(ctx context.Context, token string, ws core.WSConn) {
	id := app.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("token", token).Msg("new WS connection")

	conn := NewWsSignalConn(ws, ctl.cfg.SendBuffer)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Hub.Connect(id, token, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, id, token, conn)
}
