package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/mind"
)

const controlPrefix = "!muse"

// handleControlCommand intercepts operator commands. Returns true when
// the message was a command and must not reach the pipeline.
func (b *Bot) handleControlCommand(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, controlPrefix) {
		return false
	}
	if !b.canControl(s, m) {
		return true
	}

	args := strings.Fields(strings.TrimPrefix(content, controlPrefix))
	if len(args) == 0 {
		return true
	}

	reply := func(text string) {
		if _, err := s.ChannelMessageSend(m.ChannelID, text); err != nil {
			b.log.Error().Err(err).Msg("control reply failed")
		}
	}

	switch args[0] {
	case "status":
		snap := b.runner.Snapshot()
		state := "around"
		if snap.Away {
			state = fmt.Sprintf("away (%s until %s)", snap.AwayReason, snap.AwayUntil)
		}
		reply(fmt.Sprintf("%s, mood %s, energy %s, engine %s", state, snap.Mood, snap.Energy, snap.PrimaryEngine))
	case "sleep":
		b.runner.SetBotState(true, string(mind.AwayTimeToSleep), time.Now().Add(8*time.Hour))
		reply("ok, going quiet")
	case "wake":
		b.runner.SetBotState(false, "", time.Time{})
		reply("I'm back")
	case "mute":
		b.runner.ToggleAutoReply(b.identityKey(m), false)
		reply("muted here")
	case "unmute":
		b.runner.ToggleAutoReply(b.identityKey(m), true)
		reply("unmuted")
	case "approve":
		if len(args) < 2 {
			reply("usage: !muse approve <user id>")
			return true
		}
		if b.runner.AcceptPendingIdentity(args[1]) {
			reply("approved")
		} else {
			reply("nothing pending for that user")
		}
	case "engine":
		if len(args) < 2 {
			reply("usage: !muse engine <name>")
			return true
		}
		if err := b.runner.SetPrimaryProvider(args[1]); err != nil {
			reply("unknown engine: " + args[1])
		} else {
			reply("primary engine is now " + args[1])
		}
	}
	return true
}

// canControl allows DM senders the bot already talks to and guild
// members with Manage Server.
func (b *Bot) canControl(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return b.settings.IsApproved(m.Author.ID)
	}
	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionManageServer != 0
}

func (b *Bot) identityKey(m *discordgo.MessageCreate) string {
	id := memory.Identity{Role: b.cfg.BotRole, UserID: m.Author.ID, CommunityID: m.GuildID}
	return id.Key()
}
