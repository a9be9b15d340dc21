package domain

import "math"

// Vec3 is a position in world space.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

func (v Vec3) Distance(o Vec3) float32 { return v.Sub(o).Length() }

// VoiceFrame is built per received packet and consumed on the next tick.
type VoiceFrame struct {
	Sender   PeerID
	Position Vec3
	Audio    []byte
}
