// /internal/settings/settings.go
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/keshon/datastore"
)

// GuildSettings is the per-community engagement configuration. A guild
// without a stored record is unregistered and the bot stays silent
// there no matter what.
type GuildSettings struct {
	RespondToAll    bool     `json:"respond_to_all"`
	Keywords        []string `json:"keywords"`
	IgnoredChannels []string `json:"ignored_channels"`
	HourlyCap       int      `json:"hourly_cap"` // 0 = global default
}

// IgnoresChannel reports whether channelID is on the ignore list.
func (g *GuildSettings) IgnoresChannel(channelID string) bool {
	for _, id := range g.IgnoredChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// MatchesKeyword does a case-insensitive substring check against the
// configured keyword list.
func (g *GuildSettings) MatchesKeyword(content string) bool {
	l := strings.ToLower(content)
	for _, kw := range g.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(l, kw) {
			return true
		}
	}
	return false
}

// Storage wraps the datastore file holding guild settings, approved
// identities, and per-identity auto-reply toggles. The cancel func
// stops the datastore's background save loop; Close cancels it before
// the final save, which waits on that goroutine.
type Storage struct {
	ds     *datastore.DataStore
	cancel context.CancelFunc
}

func New(filePath string) (*Storage, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ds, err := datastore.New(ctx, filePath)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Storage{ds: ds, cancel: cancel}, nil
}

func (s *Storage) Close() error {
	s.cancel()
	return s.ds.Close()
}

func guildKey(guildID string) string { return "guild:" + guildID }

const (
	approvedKey     = "approved_users"
	autoReplyOffKey = "auto_reply_off"
)

// Guild returns the settings for guildID. ok is false when the guild
// was never registered.
func (s *Storage) Guild(guildID string) (*GuildSettings, bool) {
	var gs GuildSettings
	ok, err := s.ds.Get(guildKey(guildID), &gs)
	if err != nil || !ok {
		return nil, false
	}
	return &gs, true
}

// SetGuild registers or updates a guild configuration.
func (s *Storage) SetGuild(guildID string, gs GuildSettings) error {
	if guildID == "" {
		return fmt.Errorf("empty guild id")
	}
	return s.ds.Set(guildKey(guildID), gs)
}

// IsApproved reports whether userID may receive private auto-replies.
func (s *Storage) IsApproved(userID string) bool {
	set := s.stringSet(approvedKey)
	return set[userID]
}

// Approve whitelists userID for private auto-replies.
func (s *Storage) Approve(userID string) error {
	set := s.stringSet(approvedKey)
	set[userID] = true
	return s.ds.Set(approvedKey, set)
}

// AutoReplyEnabled is true unless the identity key was toggled off.
func (s *Storage) AutoReplyEnabled(identityKey string) bool {
	set := s.stringSet(autoReplyOffKey)
	return !set[identityKey]
}

// SetAutoReply toggles auto-replies for one identity key.
func (s *Storage) SetAutoReply(identityKey string, enabled bool) error {
	set := s.stringSet(autoReplyOffKey)
	if enabled {
		delete(set, identityKey)
	} else {
		set[identityKey] = true
	}
	return s.ds.Set(autoReplyOffKey, set)
}

func (s *Storage) stringSet(key string) map[string]bool {
	out := make(map[string]bool)
	if _, err := s.ds.Get(key, &out); err != nil {
		return make(map[string]bool)
	}
	return out
}
