package mind

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Batcher coalesces bursts of rapid messages from the same
// identity+channel into one logical turn. Debounce, not throttle: every
// new message within the window extends it.
type Batcher struct {
	mu      sync.Mutex
	window  time.Duration
	buffers map[string]*msgBuffer
	resolve func(channelID, messageID string) (*ReplyContext, error)
	onFlush func(CombinedMessage)
	log     zerolog.Logger
}

type msgBuffer struct {
	msgs      []InboundMessage
	timer     *time.Timer
	startedAt time.Time
}

// NewBatcher creates a batcher. resolve may be nil (no reply-context
// lookup); onFlush receives exactly one combined message per buffer.
func NewBatcher(window time.Duration, resolve func(channelID, messageID string) (*ReplyContext, error), onFlush func(CombinedMessage), log zerolog.Logger) *Batcher {
	if window <= 0 {
		window = 3 * time.Second
	}
	return &Batcher{
		window:  window,
		buffers: make(map[string]*msgBuffer),
		resolve: resolve,
		onFlush: onFlush,
		log:     log,
	}
}

func bufferKey(msg InboundMessage) string {
	return msg.AuthorID + ":" + msg.ChannelID
}

// Add appends the message to its buffer and restarts the flush timer.
func (b *Batcher) Add(msg InboundMessage) {
	key := bufferKey(msg)

	b.mu.Lock()
	buf := b.buffers[key]
	if buf == nil {
		buf = &msgBuffer{startedAt: time.Now()}
		b.buffers[key] = buf
	}
	buf.msgs = append(buf.msgs, msg)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	// The closure captures only the key; Flush re-fetches live state so
	// a buffer deleted in the meantime is a no-op.
	buf.timer = time.AfterFunc(b.window, func() { b.Flush(key) })
	b.mu.Unlock()
}

// Flush combines and delivers the buffer for key, then removes it.
// Safe to call twice; the second call finds nothing and returns.
func (b *Batcher) Flush(key string) {
	b.mu.Lock()
	buf := b.buffers[key]
	if buf == nil {
		b.mu.Unlock()
		return
	}
	delete(b.buffers, key)
	if buf.timer != nil {
		buf.timer.Stop()
	}
	b.mu.Unlock()

	if len(buf.msgs) == 0 {
		return
	}
	first := buf.msgs[0]

	var reply *ReplyContext
	if first.RefMessageID != "" && b.resolve != nil {
		channelID := first.RefChannelID
		if channelID == "" {
			channelID = first.ChannelID
		}
		rc, err := b.resolve(channelID, first.RefMessageID)
		if err != nil {
			b.log.Warn().Err(err).Str("message", first.RefMessageID).Msg("reply lookup failed, batching without context")
		} else {
			reply = rc
		}
	}

	parts := make([]string, 0, len(buf.msgs))
	for _, m := range buf.msgs {
		parts = append(parts, m.Content)
	}

	combined := CombinedMessage{
		Content:     strings.Join(parts, "\n"),
		AuthorID:    first.AuthorID,
		AuthorName:  first.AuthorName,
		ChannelID:   first.ChannelID,
		CommunityID: first.CommunityID,
		Attachments: first.Attachments,
		IsBatched:   len(buf.msgs) > 1,
		Originals:   buf.msgs,
		Reply:       reply,
		StartedAt:   buf.startedAt,
	}
	if b.onFlush != nil {
		b.onFlush(combined)
	}
}

// FlushAll drains every open buffer immediately. Called on shutdown.
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.buffers))
	for k := range b.buffers {
		keys = append(keys, k)
	}
	b.mu.Unlock()
	for _, k := range keys {
		b.Flush(k)
	}
}

// Pending returns the number of open buffers, for state snapshots.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers)
}
