package mind

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/memory"
)

// ExtractMemoryPrompt asks the LLM for memory updates as JSON only. No
// personality, just observation.
const ExtractMemoryPrompt = `You are an observer reviewing a chat transcript. Extract durable facts about the person and estimate relationship levels. Output ONLY valid JSON with these keys: "facts" (array of short strings, only things worth remembering long-term, empty array if nothing), "trust_level", "romantic_level", "censorship_level" (integers 0-10, or null to leave unchanged), "mood", "energy" (short lowercase words, or null). Do not invent facts that are not in the transcript. No preamble, no markdown.`

// ExtractResult is the LLM response format. Nil level pointers mean
// "leave unchanged".
type ExtractResult struct {
	Facts           []string `json:"facts"`
	TrustLevel      *int     `json:"trust_level"`
	RomanticLevel   *int     `json:"romantic_level"`
	CensorshipLevel *int     `json:"censorship_level"`
	Mood            *string  `json:"mood"`
	Energy          *string  `json:"energy"`
}

// Empty reports whether the result would change nothing.
func (r *ExtractResult) Empty() bool {
	return len(r.Facts) == 0 && r.TrustLevel == nil && r.RomanticLevel == nil &&
		r.CensorshipLevel == nil && r.Mood == nil && r.Energy == nil
}

// Extract runs the observation prompt over accumulated turns. The
// current relationship is included so level estimates drift instead of
// resetting.
func Extract(provider ai.Provider, turns []memory.ChatEntry, current *memory.Relationship) (*ExtractResult, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Current levels: trust=%d romance=%d censorship=%d mood=%s energy=%s\n",
		current.TrustLevel, current.RomanticLevel, current.CensorshipLevel, current.Mood, current.Energy))
	if len(current.Facts) > 0 {
		b.WriteString("Already known facts:\n")
		for _, f := range current.Facts {
			b.WriteString("- " + f + "\n")
		}
	}
	b.WriteString("Transcript:\n")
	for _, t := range turns {
		b.WriteString(t.Role + ": " + t.Content + "\n")
	}
	content := b.String()
	if len(content) > 6000 {
		content = content[len(content)-6000:]
	}

	out, err := provider.Generate(ai.Request{
		Messages: []ai.Message{
			{Role: "system", Content: ExtractMemoryPrompt},
			{Role: "user", Content: content},
		},
	})
	if err != nil {
		return nil, err
	}
	return parseExtractResult(out)
}

// parseExtractResult recovers the JSON object from the raw model
// output, tolerating surrounding prose and code fences.
func parseExtractResult(out string) (*ExtractResult, error) {
	raw := strings.TrimSpace(out)
	if i := strings.Index(raw, "{"); i >= 0 {
		if j := strings.LastIndex(raw, "}"); j > i {
			raw = raw[i : j+1]
		}
	}
	var res ExtractResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("extraction response is not valid JSON: %w", err)
	}
	return &res, nil
}

// MergeExtraction applies an extraction result to the stored
// relationship and promotes globally-relevant facts to the community
// record when the identity is community-scoped.
func MergeExtraction(store memory.Store, id memory.Identity, res *ExtractResult) error {
	if res == nil || res.Empty() {
		return nil
	}

	rel := store.Relationship(id)
	var personal, global []string
	for _, f := range res.Facts {
		if memory.IsGloballyRelevant(f) && !id.Private() {
			global = append(global, f)
		} else {
			personal = append(personal, f)
		}
	}
	rel.Facts = memory.MergeFacts(rel.Facts, personal)
	if res.TrustLevel != nil {
		rel.TrustLevel = *res.TrustLevel
	}
	if res.RomanticLevel != nil {
		rel.RomanticLevel = *res.RomanticLevel
	}
	if res.CensorshipLevel != nil {
		rel.CensorshipLevel = *res.CensorshipLevel
	}
	if res.Mood != nil && *res.Mood != "" {
		rel.Mood = *res.Mood
	}
	if res.Energy != nil && *res.Energy != "" {
		rel.Energy = *res.Energy
	}
	rel.Clamp()
	if err := store.SaveRelationship(id, rel); err != nil {
		return err
	}

	if len(global) > 0 {
		c := store.Community(id.CommunityID)
		c.Facts = memory.MergeFacts(c.Facts, global)
		if err := store.SaveCommunity(id.CommunityID, c); err != nil {
			return err
		}
	}
	return nil
}
