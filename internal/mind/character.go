package mind

import (
	"os"
	"path/filepath"
	"strings"
)

// Character is the static persona the agent speaks as. The identity
// text is free-form prose maintained by hand, never written by code.
type Character struct {
	Role     string
	Name     string
	Identity string
	Aliases  []string
}

const defaultIdentity = "You are a laid-back, observant companion who hangs out in chat. " +
	"You speak casually, remember people, and react like a real person would."

// LoadCharacter reads {dataRoot}/character/{role}.md. A missing file
// falls back to a built-in minimal persona.
func LoadCharacter(dataRoot, role string) *Character {
	c := &Character{
		Role:     role,
		Name:     titleCase(role),
		Identity: defaultIdentity,
	}
	if b, err := os.ReadFile(filepath.Join(dataRoot, "character", role+".md")); err == nil {
		if text := strings.TrimSpace(string(b)); text != "" {
			c.Identity = text
		}
	}
	return c
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
