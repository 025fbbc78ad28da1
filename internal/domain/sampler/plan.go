package sampler

import (
	"math"
	"time"
)

// Plan is a sampling cadence: Total frames at Rate samples per second.
type Plan struct {
	Total int
	Rate  float64
}

// FixedRate samples floor(duration*rate) frames at rate.
func FixedRate(d time.Duration, rate float64) Plan {
	if d <= 0 || rate <= 0 {
		return Plan{}
	}
	return Plan{Total: int(math.Floor(d.Seconds() * rate)), Rate: rate}
}

// AlignTo samples once per element of an n-long detection sequence spread over d.
// The effective rate is n/d; it is not reconciled with the rate the detections
// were produced at.
func AlignTo(n int, d time.Duration) Plan {
	if n <= 0 || d <= 0 {
		return Plan{}
	}
	return Plan{Total: n, Rate: float64(n) / d.Seconds()}
}

// Timestamp is the unclamped sampling position of frame i.
func (p Plan) Timestamp(i int) time.Duration {
	if p.Rate <= 0 {
		return 0
	}
	return time.Duration(float64(i) / p.Rate * float64(time.Second))
}

// Percent is floor(done/total*100).
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Floor(float64(done) / float64(total) * 100))
}
