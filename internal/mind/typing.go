package mind

import (
	"math/rand"
	"time"
)

// MaxTypingDelay caps the pause before sending so long replies don't
// leave the channel hanging.
const MaxTypingDelay = 2500 * time.Millisecond

const minTypingDelay = 400 * time.Millisecond

// charsPerSecond approximates how fast the persona "types" at a given
// energy level.
var charsPerSecond = map[string]float64{
	"tired":     28,
	"sleepy":    20,
	"energetic": 55,
}

// TypingDelay simulates composing time for a reply of textLen runes.
// jitter returns a value in [0,1); pass nil for the default source.
func TypingDelay(textLen int, energy string, jitter func() float64) time.Duration {
	if jitter == nil {
		jitter = rand.Float64
	}
	cps, ok := charsPerSecond[energy]
	if !ok {
		cps = 40
	}
	secs := float64(textLen) / cps
	// +/-20% so back-to-back replies don't look metronomic.
	secs *= 0.8 + 0.4*jitter()
	d := time.Duration(secs * float64(time.Second))
	if d < minTypingDelay {
		d = minTypingDelay
	}
	if d > MaxTypingDelay {
		d = MaxTypingDelay
	}
	return d
}
