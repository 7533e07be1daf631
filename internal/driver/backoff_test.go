package driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		initial time.Duration
		max     time.Duration
		base    time.Duration
	}{
		{"first attempt", 0, 100 * time.Millisecond, time.Second, 100 * time.Millisecond},
		{"doubles", 3, 100 * time.Millisecond, 10 * time.Second, 800 * time.Millisecond},
		{"capped", 10, 100 * time.Millisecond, time.Second, time.Second},
		{"huge attempt without cap", 1000, time.Millisecond, 0, time.Duration(float64(time.Millisecond) * (1 << 32))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 20 {
				got := calculateBackoff(tt.attempt, tt.initial, tt.max)
				assert.GreaterOrEqual(t, float64(got), float64(tt.base)*0.8-1)
				assert.LessOrEqual(t, float64(got), float64(tt.base)*1.2+1)
			}
		})
	}
}

func TestCalculateBackoff_Disabled(t *testing.T) {
	assert.Equal(t, time.Duration(0), calculateBackoff(5, 0, time.Second))
}
