package signal

import (
	"github.com/dkeye/spatialvoice/internal/app"
	"github.com/dkeye/spatialvoice/internal/signaling"
)

func (ctl *SignalWSController) handleRelay(id app.ConnID, f signaling.Frame) {
	ctl.Hub.Relay(id, f)
}

func (ctl *SignalWSController) handleSeal(id app.ConnID) {
	ctl.Hub.Seal(id)
}
