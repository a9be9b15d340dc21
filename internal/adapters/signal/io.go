package signal

import (
	"context"
	"time"

	"github.com/dkeye/spatialvoice/internal/app"
	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/dkeye/spatialvoice/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	p, canPing := c.conn.(controlWriter)
	var ping <-chan time.Time
	if canPing && ctl.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.cfg.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-c.done:
			return
		case <-ping:
			if err := p.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data := <-c.send:
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if closed {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, id app.ConnID, token string, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		c.Close()
		ctl.Hub.Disconnect(id)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(id, token, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(id app.ConnID, token string, c *WsSignalConn, data []byte) {
	f, err := signaling.DecodeFrame(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad frame")
		return
	}

	switch f.Type {
	case signaling.MsgJoin:
		ctl.handleJoin(id, token, c, f)
	case signaling.MsgOffer, signaling.MsgAnswer, signaling.MsgCandidate:
		ctl.handleRelay(id, f)
	case signaling.MsgSeal:
		ctl.handleSeal(id)
	default:
		log.Warn().Str("module", "signal").Str("type", f.Type.String()).Msg("unexpected signal from client")
	}
}

func (ctl *SignalWSController) handleJoin(id app.ConnID, token string, c *WsSignalConn, f signaling.Frame) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(token) {
		log.Warn().Str("module", "signal").Str("token", token).Msg("join rate limited")
		c.CloseWith(app.CloseRateLimited, app.ReasonRateLimited)
		return
	}
	ctl.Hub.Join(id, f.ID == signaling.JoinMesh, domain.LobbyName(f.Data))
}
