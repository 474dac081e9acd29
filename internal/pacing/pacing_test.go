package pacing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowBounds(t *testing.T) {
	tests := []struct {
		name    string
		min     time.Duration
		jitter  float64
		wantMin time.Duration
		wantMax time.Duration
	}{
		{"default jitter doubles the floor", time.Second, 1.0, time.Second, 2 * time.Second},
		{"zero jitter collapses the window", time.Second, 0, time.Second, time.Second},
		{"fractional jitter", 200 * time.Millisecond, 0.5, 200 * time.Millisecond, 300 * time.Millisecond},
		{"negative jitter treated as zero", time.Second, -1.5, time.Second, time.Second},
		{"negative floor treated as zero", -time.Second, 1.0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			min, max := New(tc.min, tc.jitter).Window()
			assert.Equal(t, tc.wantMin, min)
			assert.Equal(t, tc.wantMax, max)
		})
	}
}

func TestDurationStaysInsideWindow(t *testing.T) {
	p := New(100*time.Millisecond, 1.0)
	min, max := p.Window()
	for i := 0; i < 1000; i++ {
		d := p.Duration()
		assert.GreaterOrEqual(t, d, min)
		assert.LessOrEqual(t, d, max)
	}
}

func TestDurationCollapsedWindowIsConstant(t *testing.T) {
	p := New(50*time.Millisecond, 0)
	for i := 0; i < 10; i++ {
		assert.Equal(t, 50*time.Millisecond, p.Duration())
	}
}

func TestGaussianDurationClamped(t *testing.T) {
	mean, stdDev := 1400*time.Millisecond, 600*time.Millisecond
	lo, hi := mean-3*stdDev, mean+3*stdDev
	for i := 0; i < 1000; i++ {
		d := GaussianDuration(mean, stdDev)
		assert.GreaterOrEqual(t, d, lo)
		assert.LessOrEqual(t, d, hi)
	}
}
