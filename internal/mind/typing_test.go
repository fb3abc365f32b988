package mind

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingDelayBounds(t *testing.T) {
	mid := func() float64 { return 0.5 }

	assert.Equal(t, minTypingDelay, TypingDelay(1, "normal", mid),
		"tiny replies still pause a moment")
	assert.Equal(t, MaxTypingDelay, TypingDelay(100000, "normal", mid),
		"the delay never exceeds the ceiling")
}

func TestTypingDelayScalesWithEnergy(t *testing.T) {
	mid := func() float64 { return 0.5 }

	normal := TypingDelay(80, "normal", mid)
	sleepy := TypingDelay(80, "sleepy", mid)
	energetic := TypingDelay(80, "energetic", mid)

	assert.Greater(t, sleepy, normal, "sleepy types slower")
	assert.Less(t, energetic, normal, "energetic types faster")
	assert.Equal(t, 2*time.Second, normal, "80 chars at 40 cps")
}

func TestTypingDelayJitterStaysInRange(t *testing.T) {
	low := TypingDelay(80, "normal", func() float64 { return 0 })
	high := TypingDelay(80, "normal", func() float64 { return 0.999 })

	assert.InDelta(t, float64(1600*time.Millisecond), float64(low), float64(time.Millisecond))
	assert.Less(t, high, MaxTypingDelay+1)
	assert.Greater(t, high, low)
}
