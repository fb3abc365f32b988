package mind

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/server-muse/internal/memory"
)

func testCharacter() *Character {
	return &Character{Role: "muse", Name: "Muse", Identity: "You are Muse, a laid-back companion."}
}

func TestBuildMemoryViewPrivateScope(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	id := memory.Identity{Role: "muse", UserID: "u1"}
	rel := memory.DefaultRelationship()
	rel.Facts = []string{"plays bass"}
	rel.TrustLevel = 7
	require.NoError(t, store.SaveRelationship(id, rel))

	view := BuildMemoryView(store, id, "hey", nil)
	assert.Equal(t, []string{"plays bass"}, view.Facts)
	assert.Equal(t, 7, view.TrustLevel)
	assert.Empty(t, view.CommunityFacts)
}

func TestBuildMemoryViewCommunityScope(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	id := memory.Identity{Role: "muse", UserID: "u1", CommunityID: "g1"}
	c := memory.DefaultCommunity()
	c.Facts = []string{"movie night is thursdays"}
	c.Mood = "excited"
	require.NoError(t, store.SaveCommunity("g1", c))

	view := BuildMemoryView(store, id, "hey", nil)
	assert.Equal(t, []string{"movie night is thursdays"}, view.CommunityFacts)
	assert.Equal(t, "excited", view.CommunityMood)
}

func TestBuildMemoryViewPullsMentionedCommunityInDM(t *testing.T) {
	store := memory.NewFileStore(t.TempDir())
	c := memory.DefaultCommunity()
	c.Facts = []string{"the server runs a minecraft world"}
	require.NoError(t, store.SaveCommunity("g1", c))

	id := memory.Identity{Role: "muse", UserID: "u1"}
	known := map[string]string{"the hangout": "g1"}

	view := BuildMemoryView(store, id, "what's new in The Hangout?", known)
	assert.Equal(t, "the hangout", view.MentionedCommunity)
	assert.Equal(t, []string{"the server runs a minecraft world"}, view.MentionedFacts)

	view = BuildMemoryView(store, id, "nothing relevant here", known)
	assert.Empty(t, view.MentionedCommunity)
}

func TestStructuredRendering(t *testing.T) {
	comp := NewComposer(testCharacter())
	view := MemoryView{
		Facts:           []string{"plays bass"},
		TrustLevel:      7,
		RomanticLevel:   2,
		CensorshipLevel: 8,
	}
	mood := &memory.MoodState{Mood: "chill", Energy: "normal"}
	history := []memory.ChatEntry{
		{Role: "alex", Content: "hey, you around?"},
		{Role: "muse", Content: "always"},
	}

	msgs := comp.Structured(history, view, mood, "")
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].Role)
	sys := msgs[0].Content
	assert.Contains(t, sys, "You are Muse")
	assert.Contains(t, sys, "plays bass")
	assert.Contains(t, sys, "trust 7/10")
	assert.Contains(t, sys, "private one-on-one")
	assert.Contains(t, sys, "No stage directions")

	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "hey, you around?", msgs[1].Content)
	assert.Equal(t, "assistant", msgs[2].Role, "the persona's own turns map to the assistant role")
	assert.Equal(t, "always", msgs[2].Content)
}

func TestStructuredRenderingCommunityBlock(t *testing.T) {
	comp := NewComposer(testCharacter())
	view := MemoryView{
		CommunityName:   "g1",
		CommunityFacts:  []string{"movie night is thursdays"},
		CommunityMood:   "excited",
		CommunityEnergy: "energetic",
		CensorshipLevel: 8,
	}

	msgs := comp.Structured(nil, view, nil, "")
	sys := msgs[0].Content
	assert.Contains(t, sys, "chatting in a server")
	assert.Contains(t, sys, "movie night is thursdays")
	assert.Contains(t, sys, "Server vibe: excited")
	assert.NotContains(t, sys, "private one-on-one")
}

func TestFlattenedRendering(t *testing.T) {
	comp := NewComposer(testCharacter())
	history := []memory.ChatEntry{
		{Role: "alex", Content: "morning"},
		{Role: "muse", Content: "hey you"},
	}

	flat := comp.Flattened(history, MemoryView{CensorshipLevel: 8}, nil, "")
	assert.Contains(t, flat, "alex: morning")
	assert.Contains(t, flat, "Muse: hey you", "the persona's turns carry its display name")
	assert.Contains(t, flat, "Now reply as Muse.")
	assert.True(t, strings.Contains(flat, "No stage directions"))
}

func TestToneDirectives(t *testing.T) {
	lines := ToneDirectives("tired", "sleepy")
	require.Len(t, lines, 2)

	assert.Empty(t, ToneDirectives("unheard-of", "alien"), "unknown states add nothing")
}

func TestSituationAppearsInSystemTurn(t *testing.T) {
	comp := NewComposer(testCharacter())
	msgs := comp.Structured(nil, MemoryView{}, nil, "They sent several messages in a row.")
	assert.Contains(t, msgs[0].Content, "Situation: They sent several messages in a row.")
}
