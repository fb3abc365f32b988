package mind

import (
	"time"
)

// InboundMessage is what the transport hands the pipeline. CommunityID
// empty means a direct-message context.
type InboundMessage struct {
	MessageID    string
	AuthorID     string
	AuthorName   string
	Content      string
	ChannelID    string
	CommunityID  string
	Mentioned    bool
	ReplyToAgent bool
	RefChannelID string
	RefMessageID string
	Attachments  []string
	At           time.Time
}

// ReplyContext is the resolved referenced message a batch responds to.
type ReplyContext struct {
	Author  string
	Content string
}

// CombinedMessage is the single logical turn a flushed buffer produces.
// Metadata comes from the first buffered message, content from the
// newline join of all of them.
type CombinedMessage struct {
	Content     string
	AuthorID    string
	AuthorName  string
	ChannelID   string
	CommunityID string
	Attachments []string
	IsBatched   bool
	Originals   []InboundMessage
	Reply       *ReplyContext
	StartedAt   time.Time
}

// Platform is the transport capability the pipeline consumes.
type Platform interface {
	FetchMessage(channelID, messageID string) (author, content string, err error)
	SendTyping(channelID string) error
	SendMessage(channelID, text string) error
}

// Config carries the pipeline knobs, owned by the Runner and passed by
// reference into the gate, batcher, and presence simulator.
type Config struct {
	Role             string
	ActiveHourStart  int
	ActiveHourEnd    int
	HourlyCap        int
	GuildHourlyCap   int
	BatchWindow      time.Duration
	ExtractBatchSize int
	NaturalIgnore    bool
	Temperature      float64
	MaxTokens        int
}

// DefaultConfig returns sane pipeline defaults for tests and tools.
func DefaultConfig(role string) Config {
	return Config{
		Role:             role,
		ActiveHourStart:  9,
		ActiveHourEnd:    23,
		HourlyCap:        60,
		GuildHourlyCap:   30,
		BatchWindow:      3 * time.Second,
		ExtractBatchSize: 10,
		Temperature:      1.0,
		MaxTokens:        800,
	}
}
