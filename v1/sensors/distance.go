package sensors

import (
	"fmt"
	"math"
	"time"
)

// SpeedOfSound is the speed used to convert echo widths, in metres per second.
const SpeedOfSound = 343.0

// Distance is a measured range in millimetres.
type Distance float64

// DistanceFromEcho converts the width of an echo pulse. The pulse covers
// the path there and back, so the distance is half of v*t.
func DistanceFromEcho(d time.Duration) Distance {
	m := SpeedOfSound * d.Seconds() / 2
	return Distance(m * 1000)
}

// FromCM returns the distance for cm centimetres.
func FromCM(cm float64) Distance { return Distance(cm * 10) }

// MM returns the raw millimetre value.
func (d Distance) MM() float64 { return float64(d) }

// CM returns whole centimetres: millimetres are rounded, then divided and
// truncated.
func (d Distance) CM() int64 {
	return int64(math.Round(float64(d)) / 10)
}

// CMFloat returns centimetres with one decimal of precision.
func (d Distance) CMFloat() float64 {
	return math.Round(float64(d)) / 10
}

func (d Distance) String() string {
	return fmt.Sprintf("%.1fcm", d.CMFloat())
}
