package memory

import (
	"strings"
	"time"
)

const (
	// MaxFacts caps remembered facts per scope; oldest are evicted first.
	MaxFacts = 30
	// MaxChatEntries caps the rolling transcript per identity.
	MaxChatEntries = 50
)

// Identity namespaces all memory lookups. An empty CommunityID means a
// private one-to-one context; private and community stores for the same
// user are fully independent.
type Identity struct {
	Role        string
	UserID      string
	CommunityID string
}

// Private reports whether this identity is a direct-message context.
func (id Identity) Private() bool { return id.CommunityID == "" }

// Key returns a flat identity key, e.g. "muse:123" or "muse:123:987".
func (id Identity) Key() string {
	if id.Private() {
		return id.Role + ":" + id.UserID
	}
	return id.Role + ":" + id.UserID + ":" + id.CommunityID
}

// Relationship is the per-identity long-term relationship record.
// Numeric levels always stay in [0,10]; mutation goes through the
// extractor merge which clamps at the boundary.
type Relationship struct {
	Facts           []string `json:"facts"`
	TrustLevel      int      `json:"trust_level"`
	RomanticLevel   int      `json:"romantic_level"`
	CensorshipLevel int      `json:"censorship_level"`
	Mood            string   `json:"mood"`
	Energy          string   `json:"energy"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// DefaultRelationship returns the lazily-created record for an identity
// that has never been saved.
func DefaultRelationship() *Relationship {
	return &Relationship{
		Facts:           []string{},
		TrustLevel:      5,
		RomanticLevel:   0,
		CensorshipLevel: 8,
		Mood:            "neutral",
		Energy:          "normal",
	}
}

// Clamp forces numeric levels into [0,10].
func (r *Relationship) Clamp() {
	r.TrustLevel = clampLevel(r.TrustLevel)
	r.RomanticLevel = clampLevel(r.RomanticLevel)
	r.CensorshipLevel = clampLevel(r.CensorshipLevel)
}

// Community is shared knowledge for a whole server, no user dimension.
type Community struct {
	Facts     []string `json:"facts"`
	Mood      string   `json:"mood"`
	Energy    string   `json:"energy"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

func DefaultCommunity() *Community {
	return &Community{Facts: []string{}, Mood: "neutral", Energy: "normal"}
}

// ChatEntry is one transcript line. Context is "dm" or "server:<id>".
type ChatEntry struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
	Context string    `json:"context"`
}

// MoodState is the agent's own simulated emotional state, a singleton
// per role, independent of any user's relationship record.
type MoodState struct {
	Mood        string    `json:"mood"`
	Energy      string    `json:"energy"`
	LastUpdated time.Time `json:"last_updated"`
}

func DefaultMoodState() *MoodState {
	return &MoodState{Mood: "neutral", Energy: "normal"}
}

func clampLevel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

// MergeFacts appends incoming facts to existing ones, dropping
// duplicates and keeping insertion order, then evicts the oldest
// entries beyond MaxFacts.
func MergeFacts(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, f := range existing {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	for _, f := range incoming {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) > MaxFacts {
		out = out[len(out)-MaxFacts:]
	}
	return out
}

var globalMarkers = []string{
	"everyone", "the group", "the server", "this server",
	"people here", "the community", "all of us",
}

// IsGloballyRelevant decides whether an extracted fact belongs to the
// whole community rather than one user. Plain substring heuristic.
func IsGloballyRelevant(fact string) bool {
	l := strings.ToLower(fact)
	for _, m := range globalMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}
