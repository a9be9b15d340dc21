package voice

import "math"

const (
	DefaultMaxVoiceDistance = 20
	SampleRate              = 48000
	// MinVolumeDB is what silence maps to.
	MinVolumeDB = -80
)

// Attenuation is the linear gain for a speaker d units away.
func Attenuation(d, maxRange float32) float32 {
	if maxRange <= 0 {
		return 0
	}
	a := 1 - d/maxRange
	return min(max(a, 0), 1)
}

func LinearToDB(a float32) float32 {
	if a <= 0 {
		return MinVolumeDB
	}
	return max(float32(20*math.Log10(float64(a))), MinVolumeDB)
}

// DBToLinear is the inverse used by playback backends.
func DBToLinear(db float32) float64 {
	if db <= MinVolumeDB {
		return 0
	}
	return math.Pow(10, float64(db)/20)
}
