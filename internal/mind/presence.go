package mind

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// AwayReason is why the agent is currently unavailable.
type AwayReason string

const (
	AwayTimeToSleep AwayReason = "time_to_sleep"
	AwayTired       AwayReason = "tired"
)

// TiredAwayDuration is how long a fatigue break lasts.
const TiredAwayDuration = 30 * time.Minute

var sleepExcuses = []string{
	"heading to bed, catch you tomorrow 😴",
	"it's way past my bedtime. night!",
	"I'm out for the night, talk later",
	"gonna crash. see you when I'm up",
}

var tiredExcuses = []string{
	"I need a breather, back in %d minutes",
	"too much chat for me right now, give me %d minutes",
	"stepping away for %d minutes, brain is full",
}

// Presence tracks the simulated away state and the hourly message
// counters that drive fatigue. Owned by the Runner, read by the Gate.
type Presence struct {
	mu       sync.Mutex
	cfg      *Config
	away     bool
	reason   AwayReason
	until    time.Time
	global   hourCounter
	guilds   map[string]*hourCounter
	randIntn func(int) int
}

func NewPresence(cfg *Config) *Presence {
	return &Presence{
		cfg:      cfg,
		guilds:   make(map[string]*hourCounter),
		randIntn: rand.Intn,
	}
}

// hourCounter counts messages in a rolling one-hour window.
type hourCounter struct {
	windowStart time.Time
	count       int
}

func (c *hourCounter) bump(now time.Time) int {
	if c.windowStart.IsZero() || now.Sub(c.windowStart) >= time.Hour {
		c.windowStart = now
		c.count = 0
	}
	c.count++
	return c.count
}

// IsAway reports the away state, clearing it automatically once the
// away window has elapsed.
func (p *Presence) IsAway(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.away && !p.until.IsZero() && !now.Before(p.until) {
		p.away = false
		p.reason = ""
		p.until = time.Time{}
	}
	return p.away
}

// State returns the current away state for snapshots.
func (p *Presence) State() (away bool, reason AwayReason, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.away, p.reason, p.until
}

// Observe runs the away transitions for one accepted message. The sleep
// check wins over fatigue. When a transition happens it returns true
// and a ready-to-send excuse line.
func (p *Presence) Observe(communityID string, guildCap int, now time.Time) (wentAway bool, excuse string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.away {
		return false, ""
	}

	if !WithinActiveHours(now.Hour(), p.cfg.ActiveHourStart, p.cfg.ActiveHourEnd) {
		p.away = true
		p.reason = AwayTimeToSleep
		p.until = NextWakeTime(now, p.cfg.ActiveHourStart)
		return true, sleepExcuses[p.randIntn(len(sleepExcuses))]
	}

	over := false
	if p.cfg.HourlyCap > 0 && p.global.bump(now) >= p.cfg.HourlyCap {
		over = true
	}
	if communityID != "" {
		limit := guildCap
		if limit <= 0 {
			limit = p.cfg.GuildHourlyCap
		}
		gc := p.guilds[communityID]
		if gc == nil {
			gc = &hourCounter{}
			p.guilds[communityID] = gc
		}
		if limit > 0 && gc.bump(now) >= limit {
			over = true
		}
	}
	if over {
		p.away = true
		p.reason = AwayTired
		p.until = now.Add(TiredAwayDuration)
		minutes := int(TiredAwayDuration.Minutes())
		return true, fmt.Sprintf(tiredExcuses[p.randIntn(len(tiredExcuses))], minutes)
	}

	return false, ""
}

// LoadFactor is the global hourly counter as a share of the cap, for
// mood drift. Zero when no cap is configured.
func (p *Presence) LoadFactor(now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.HourlyCap <= 0 {
		return 0
	}
	if p.global.windowStart.IsZero() || now.Sub(p.global.windowStart) >= time.Hour {
		return 0
	}
	return float64(p.global.count) / float64(p.cfg.HourlyCap)
}

// ForceAway sets the away state manually (dashboard command).
func (p *Presence) ForceAway(reason AwayReason, until time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.away = true
	p.reason = reason
	p.until = until
}

// ClearAway returns the agent to available (dashboard command).
func (p *Presence) ClearAway() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.away = false
	p.reason = ""
	p.until = time.Time{}
}

// WithinActiveHours reports whether hour falls inside [start, end).
// Windows crossing midnight (e.g. 22..6) are supported.
func WithinActiveHours(hour, start, end int) bool {
	if start == end {
		return true
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// NextWakeTime is the next occurrence of the active window's start
// hour: today if not yet reached, otherwise tomorrow.
func NextWakeTime(now time.Time, startHour int) time.Time {
	wake := time.Date(now.Year(), now.Month(), now.Day(), startHour, 0, 0, 0, now.Location())
	if !wake.After(now) {
		wake = wake.Add(24 * time.Hour)
	}
	return wake
}
