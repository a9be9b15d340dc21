package app

import "github.com/dkeye/spatialvoice/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

type Policy interface {
	OnBackPressure(lobby *Lobby, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks any member whose send queue is full.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Lobby, core.MemberSession) BackpressureAction {
	return KickMember
}
