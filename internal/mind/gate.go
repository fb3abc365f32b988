package mind

import (
	"math/rand"
	"time"

	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/settings"
)

// Gate decides whether the agent engages with an incoming message at
// all. Pure over its inputs plus the presence state it reads; the
// random source is injectable so tests are deterministic.
type Gate struct {
	cfg      *Config
	presence *Presence
	randFn   func() float64
}

func NewGate(cfg *Config, presence *Presence) *Gate {
	return &Gate{cfg: cfg, presence: presence, randFn: rand.Float64}
}

// RespondProbability maps trust to the chance of chiming in without a
// trigger when the community is in respond-to-all mode.
func RespondProbability(trust int) float64 {
	switch {
	case trust >= 8:
		return 0.8
	case trust >= 6:
		return 0.5
	case trust >= 4:
		return 0.2
	default:
		return 0.05
	}
}

// ShouldRespond runs the engagement checks in order. guild is nil when
// the message is private or the community is not registered.
func (g *Gate) ShouldRespond(msg InboundMessage, guild *settings.GuildSettings, rel *memory.Relationship, now time.Time) bool {
	if g.presence != nil && g.presence.IsAway(now) {
		return false
	}

	if msg.CommunityID == "" {
		if g.cfg.NaturalIgnore && g.ignoresNaturally(rel) {
			return false
		}
		return true
	}

	if guild == nil {
		// Unregistered community: silent, even for direct mentions.
		return false
	}
	if guild.IgnoresChannel(msg.ChannelID) {
		return false
	}

	triggered := msg.Mentioned || msg.ReplyToAgent || guild.MatchesKeyword(msg.Content)

	if guild.RespondToAll {
		if triggered {
			return true
		}
		return g.randFn() < RespondProbability(rel.TrustLevel)
	}

	return triggered
}

// ignoresNaturally occasionally leaves a DM unanswered, the way a real
// person misses notifications. More trust and more energy mean fewer
// missed messages.
func (g *Gate) ignoresNaturally(rel *memory.Relationship) bool {
	p := 0.3 - float64(rel.TrustLevel)*0.02
	switch rel.Energy {
	case "tired":
		p += 0.1
	case "sleepy":
		p += 0.2
	}
	if p <= 0 {
		return false
	}
	return g.randFn() < p
}
