// Package pacing provides the jittered sleeps inserted between interactive
// actions. The sleeps are a pacing mechanism, not synchronization: nothing
// waits on them for correctness.
package pacing

import (
	"math"
	"math/rand"
	"time"
)

// Pacer sleeps for a uniformly random duration inside a window derived from
// the configured jitter factor: [min, min + min*jitter].
type Pacer struct {
	min time.Duration
	max time.Duration
}

func New(minSleep time.Duration, jitter float64) *Pacer {
	if minSleep < 0 {
		minSleep = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	max := minSleep + time.Duration(float64(minSleep)*jitter)
	return &Pacer{min: minSleep, max: max}
}

// Window returns the sleep bounds.
func (p *Pacer) Window() (min, max time.Duration) { return p.min, p.max }

// Sleep blocks for a random duration inside the window.
func (p *Pacer) Sleep() {
	time.Sleep(p.Duration())
}

// Duration draws one jittered duration without sleeping.
func (p *Pacer) Duration() time.Duration {
	if p.max <= p.min {
		return p.min
	}
	return p.min + time.Duration(rand.Int63n(int64(p.max-p.min)+1))
}

// Think sleeps for a Gaussian-distributed pause clustered around mean,
// clamped to mean +/- 3*stdDev. Used before committing actions like the
// final send click.
func Think(mean, stdDev time.Duration) {
	if d := GaussianDuration(mean, stdDev); d > 0 {
		time.Sleep(d)
	}
}

// GaussianDuration draws one Think pause without sleeping.
func GaussianDuration(mean, stdDev time.Duration) time.Duration {
	u1 := rand.Float64()
	u2 := rand.Float64()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	d := time.Duration(float64(mean) + z*float64(stdDev))

	lo, hi := mean-3*stdDev, mean+3*stdDev
	if d < lo {
		d = lo
	} else if d > hi {
		d = hi
	}
	return d
}
