package mind

import (
	"fmt"
	"strings"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/memory"
)

// MemoryView is the flattened merge the composer works from. In a
// private context the numeric fields come from the user's private
// record; in a community context from the community-scoped record for
// that user, plus community-wide facts and mood.
type MemoryView struct {
	Facts           []string
	TrustLevel      int
	RomanticLevel   int
	CensorshipLevel int
	UserMood        string
	UserEnergy      string

	CommunityName   string
	CommunityFacts  []string
	CommunityMood   string
	CommunityEnergy string

	// Read-only pull when a private message mentions a known community.
	MentionedCommunity string
	MentionedFacts     []string
}

// BuildMemoryView assembles the view for one identity and message.
// knownCommunities maps lowercase community names/aliases to IDs.
func BuildMemoryView(store memory.Store, id memory.Identity, content string, knownCommunities map[string]string) MemoryView {
	rel := store.Relationship(id)
	view := MemoryView{
		Facts:           rel.Facts,
		TrustLevel:      rel.TrustLevel,
		RomanticLevel:   rel.RomanticLevel,
		CensorshipLevel: rel.CensorshipLevel,
		UserMood:        rel.Mood,
		UserEnergy:      rel.Energy,
	}

	if !id.Private() {
		c := store.Community(id.CommunityID)
		view.CommunityFacts = c.Facts
		view.CommunityMood = c.Mood
		view.CommunityEnergy = c.Energy
		return view
	}

	// A DM that talks about a known community pulls that community's
	// facts in as context without switching the numeric scope.
	l := strings.ToLower(content)
	for name, communityID := range knownCommunities {
		if name == "" || !strings.Contains(l, name) {
			continue
		}
		c := store.Community(communityID)
		if len(c.Facts) > 0 {
			view.MentionedCommunity = name
			view.MentionedFacts = c.Facts
		}
		break
	}
	return view
}

// Tone directives are table-driven so the mapping stays stable and
// testable. Unknown moods/energies simply add nothing.
var moodDirectives = map[string]string{
	"happy":      "Let some brightness show in your tone.",
	"sad":        "Keep the tone subdued and a little quiet.",
	"tired":      "Keep responses short, you don't have much energy.",
	"chill":      "Stay relaxed and unhurried.",
	"thoughtful": "Take a reflective, considered tone.",
	"excited":    "It's fine to be enthusiastic and quick.",
}

var energyDirectives = map[string]string{
	"tired":     "Use shorter sentences, minimal effort.",
	"sleepy":    "Be very brief, a little distracted.",
	"energetic": "More expressive language is welcome.",
}

// ToneDirectives returns the directive lines for a mood/energy pair.
func ToneDirectives(mood, energy string) []string {
	var lines []string
	if d, ok := moodDirectives[mood]; ok {
		lines = append(lines, d)
	}
	if d, ok := energyDirectives[energy]; ok {
		lines = append(lines, d)
	}
	return lines
}

const styleGuide = "Reply in-character. No stage directions, no meta-commentary, no role labels. " +
	"Write like a person typing in chat."

// Composer turns memory, history, and situational metadata into a
// provider-ready prompt. Stateless; safe for concurrent use.
type Composer struct {
	char *Character
}

func NewComposer(char *Character) *Composer {
	return &Composer{char: char}
}

// systemText renders the shared system block both renderings use.
func (c *Composer) systemText(view MemoryView, agentMood *memory.MoodState, situation string) string {
	var b strings.Builder

	b.WriteString(c.char.Identity)
	b.WriteString("\n\n")

	if agentMood != nil {
		b.WriteString(fmt.Sprintf("Your current mood: %s. Your energy: %s.\n", agentMood.Mood, agentMood.Energy))
		for _, d := range ToneDirectives(agentMood.Mood, agentMood.Energy) {
			b.WriteString(d)
			b.WriteString("\n")
		}
	}

	if situation != "" {
		b.WriteString("Situation: ")
		b.WriteString(situation)
		b.WriteString("\n")
	}

	if view.CommunityName != "" || view.CommunityFacts != nil || view.CommunityMood != "" {
		b.WriteString("You are chatting in a server.\n")
		if len(view.CommunityFacts) > 0 {
			b.WriteString("What you know about this server:\n")
			for _, f := range view.CommunityFacts {
				b.WriteString("- " + f + "\n")
			}
		}
		if view.CommunityMood != "" {
			b.WriteString(fmt.Sprintf("Server vibe: %s, energy %s.\n", view.CommunityMood, view.CommunityEnergy))
		}
	} else {
		b.WriteString("You are in a private one-on-one chat.\n")
	}

	if len(view.Facts) > 0 {
		b.WriteString("What you remember about this person:\n")
		for _, f := range view.Facts {
			b.WriteString("- " + f + "\n")
		}
	}
	b.WriteString(fmt.Sprintf("Relationship: trust %d/10, closeness %d/10, filter %d/10.\n",
		view.TrustLevel, view.RomanticLevel, view.CensorshipLevel))
	if view.UserMood != "" {
		b.WriteString(fmt.Sprintf("They seem %s lately, energy %s.\n", view.UserMood, view.UserEnergy))
	}

	if view.MentionedCommunity != "" {
		b.WriteString(fmt.Sprintf("They brought up %q. What you know about it:\n", view.MentionedCommunity))
		for _, f := range view.MentionedFacts {
			b.WriteString("- " + f + "\n")
		}
	}

	return strings.TrimSpace(b.String())
}

// Structured builds the multi-turn rendering: one system turn plus one
// turn per transcript entry.
func (c *Composer) Structured(history []memory.ChatEntry, view MemoryView, agentMood *memory.MoodState, situation string) []ai.Message {
	msgs := []ai.Message{{Role: "system", Content: c.systemText(view, agentMood, situation) + "\n\n" + styleGuide}}
	for _, e := range history {
		role := "user"
		if e.Role == c.char.Role {
			role = "assistant"
		}
		msgs = append(msgs, ai.Message{Role: role, Content: e.Content})
	}
	return msgs
}

// Flattened serializes the same content as a single text block for
// engines that only accept a flat prompt.
func (c *Composer) Flattened(history []memory.ChatEntry, view MemoryView, agentMood *memory.MoodState, situation string) string {
	var b strings.Builder
	b.WriteString(c.systemText(view, agentMood, situation))
	b.WriteString("\n\nConversation so far:\n")
	for _, e := range history {
		who := e.Role
		if e.Role == c.char.Role {
			who = c.char.Name
		}
		b.WriteString(who + ": " + e.Content + "\n")
	}
	b.WriteString("\n" + styleGuide + "\n")
	b.WriteString(fmt.Sprintf("Now reply as %s.", c.char.Name))
	return b.String()
}
