package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/romshark/hwsim-medium/ratelimit"
)

func TestDisabled(t *testing.T) {
	l := ratelimit.New(0)
	assert.Nil(t, l)
	for range 1000 {
		assert.True(t, l.Allow(time.Time{}))
	}
}

func TestSteadyRate(t *testing.T) {
	l := ratelimit.New(10)
	t0 := time.Unix(1000, 0)

	assert.True(t, l.Allow(t0))
	assert.False(t, l.Allow(t0))
	assert.False(t, l.Allow(t0.Add(50*time.Millisecond)))
	assert.True(t, l.Allow(t0.Add(100*time.Millisecond)))

	// No catching up after an idle period beyond the burst.
	t1 := t0.Add(10 * time.Second)
	assert.True(t, l.Allow(t1))
	assert.False(t, l.Allow(t1))
}

func TestBurst(t *testing.T) {
	l := ratelimit.New(1000) // burst of 10
	now := time.Unix(1000, 0)
	allowed := 0
	for range 50 {
		if l.Allow(now) {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)

	// One second later the full second's budget is available again.
	later := now.Add(time.Second)
	allowed = 0
	for i := range 1000 {
		if l.Allow(later.Add(time.Duration(i) * time.Millisecond)) {
			allowed++
		}
	}
	assert.Equal(t, 1000, allowed)
}
