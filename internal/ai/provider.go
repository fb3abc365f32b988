package ai

import (
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the engine-agnostic completion request. Chat engines read
// Messages; text-only engines read Text. Image is optional and dropped
// by engines without vision support.
type Request struct {
	Messages    []Message
	Text        string
	Temperature float64
	MaxTokens   int
	Image       []byte
}

type Provider interface {
	Name() string
	SupportsChat() bool
	Generate(req Request) (string, error)
}

// Options are shared engine knobs taken from config.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// NewEngine builds a provider from an engine string, e.g.
// "pollinations", "pollinations-text", "g4f:gpt-oss-120b",
// "g4f:groq/qwen/qwen3-32b".
func NewEngine(engine string) (Provider, error) {
	switch {
	case engine == "pollinations":
		return NewPollinationsProvider(), nil
	case engine == "pollinations-text":
		return NewPollinationsTextProvider(), nil
	case engine == "g4f" || strings.HasPrefix(engine, "g4f:"):
		return NewG4FProvider(engine), nil
	default:
		return nil, fmt.Errorf("unsupported AI engine: %s", engine)
	}
}

// FlattenMessages converts chat turns to a single text block with
// role-prefixed lines, for engines that only take a flat prompt.
// Image parts never survive this conversion.
func FlattenMessages(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString(m.Content)
		default:
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
