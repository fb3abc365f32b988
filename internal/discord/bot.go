package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/server-muse/internal/config"
	"github.com/keshon/server-muse/internal/mind"
	"github.com/keshon/server-muse/internal/settings"
)

// Bot is the Discord transport. It feeds inbound messages to the mind
// runner and implements mind.Platform for the reply path.
type Bot struct {
	dg       *discordgo.Session
	cfg      *config.Config
	runner   *mind.Runner
	settings *settings.Storage
	log      zerolog.Logger
}

func NewBot(cfg *config.Config, runner *mind.Runner, st *settings.Storage, log zerolog.Logger) *Bot {
	return &Bot{cfg: cfg, runner: runner, settings: st, log: log}
}

// Run opens the gateway session and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg
	b.runner.SetPlatform(b)

	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageTyping |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onGuildCreate)
	dg.AddHandler(b.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, draining buffers")
	b.runner.FlushAll()
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")
}

// onGuildCreate registers first-seen guilds with default settings so
// the gate only sees communities an operator can configure.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.runner.RegisterCommunityName(g.Name, g.ID)
	if _, ok := b.settings.Guild(g.ID); ok {
		return
	}
	if err := b.settings.SetGuild(g.ID, settings.GuildSettings{}); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("guild registration failed")
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("registered new guild")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if b.handleControlCommand(s, m) {
		return
	}
	b.runner.HandleMessage(b.toInbound(s, m))
}

func (b *Bot) toInbound(s *discordgo.Session, m *discordgo.MessageCreate) mind.InboundMessage {
	msg := mind.InboundMessage{
		MessageID:   m.ID,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		Content:     strings.TrimSpace(m.ContentWithMentionsReplaced()),
		ChannelID:   m.ChannelID,
		CommunityID: m.GuildID,
		At:          m.Timestamp,
	}
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			msg.Mentioned = true
			break
		}
	}
	if ref := m.MessageReference; ref != nil {
		msg.RefChannelID = ref.ChannelID
		msg.RefMessageID = ref.MessageID
		if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
			msg.ReplyToAgent = m.ReferencedMessage.Author.ID == s.State.User.ID
		}
	}
	for _, a := range m.Attachments {
		if a != nil && strings.HasPrefix(a.ContentType, "image/") {
			msg.Attachments = append(msg.Attachments, a.URL)
		}
	}
	return msg
}

// FetchMessage implements mind.Platform.
func (b *Bot) FetchMessage(channelID, messageID string) (author, content string, err error) {
	m, err := b.dg.ChannelMessage(channelID, messageID)
	if err != nil {
		return "", "", err
	}
	name := ""
	if m.Author != nil {
		name = m.Author.Username
	}
	return name, m.Content, nil
}

// SendTyping implements mind.Platform.
func (b *Bot) SendTyping(channelID string) error {
	return b.dg.ChannelTyping(channelID)
}

// SendMessage implements mind.Platform.
func (b *Bot) SendMessage(channelID, text string) error {
	_, err := b.dg.ChannelMessageSend(channelID, text)
	return err
}
