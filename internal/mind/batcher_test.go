package mind

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound(id, content string) InboundMessage {
	return InboundMessage{
		MessageID:  id,
		AuthorID:   "u1",
		AuthorName: "alex",
		Content:    content,
		ChannelID:  "c1",
		At:         time.Now(),
	}
}

func TestBatcherCombinesBurst(t *testing.T) {
	var got []CombinedMessage
	b := NewBatcher(time.Hour, nil, func(cm CombinedMessage) { got = append(got, cm) }, zerolog.Nop())

	b.Add(inbound("1", "m1"))
	b.Add(inbound("2", "m2"))
	b.Add(inbound("3", "m3"))
	require.Equal(t, 1, b.Pending())

	b.Flush("u1:c1")
	require.Len(t, got, 1)
	cm := got[0]
	assert.Equal(t, "m1\nm2\nm3", cm.Content)
	assert.True(t, cm.IsBatched)
	assert.Equal(t, "u1", cm.AuthorID)
	assert.Equal(t, "alex", cm.AuthorName)
	assert.Len(t, cm.Originals, 3)
	assert.Equal(t, 0, b.Pending())
}

func TestBatcherFlushIsIdempotent(t *testing.T) {
	calls := 0
	b := NewBatcher(time.Hour, nil, func(CombinedMessage) { calls++ }, zerolog.Nop())

	b.Add(inbound("1", "hello"))
	b.Flush("u1:c1")
	b.Flush("u1:c1")
	assert.Equal(t, 1, calls)
}

func TestBatcherSingleMessageNotMarkedBatched(t *testing.T) {
	var got CombinedMessage
	b := NewBatcher(time.Hour, nil, func(cm CombinedMessage) { got = cm }, zerolog.Nop())

	b.Add(inbound("1", "just one"))
	b.Flush("u1:c1")
	assert.False(t, got.IsBatched)
	assert.Equal(t, "just one", got.Content)
}

func TestBatcherTimerFires(t *testing.T) {
	done := make(chan CombinedMessage, 1)
	b := NewBatcher(20*time.Millisecond, nil, func(cm CombinedMessage) { done <- cm }, zerolog.Nop())

	b.Add(inbound("1", "hey"))
	select {
	case cm := <-done:
		assert.Equal(t, "hey", cm.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("flush timer never fired")
	}
}

func TestBatcherResolvesReplyContext(t *testing.T) {
	resolve := func(channelID, messageID string) (*ReplyContext, error) {
		assert.Equal(t, "other-chan", channelID)
		assert.Equal(t, "ref-1", messageID)
		return &ReplyContext{Author: "muse", Content: "the original"}, nil
	}
	var got CombinedMessage
	b := NewBatcher(time.Hour, resolve, func(cm CombinedMessage) { got = cm }, zerolog.Nop())

	msg := inbound("1", "replying to you")
	msg.RefChannelID = "other-chan"
	msg.RefMessageID = "ref-1"
	b.Add(msg)
	b.Flush("u1:c1")

	require.NotNil(t, got.Reply)
	assert.Equal(t, "muse", got.Reply.Author)
	assert.Equal(t, "the original", got.Reply.Content)
}

func TestBatcherToleratesReplyLookupFailure(t *testing.T) {
	resolve := func(string, string) (*ReplyContext, error) {
		return nil, errors.New("message deleted")
	}
	var got CombinedMessage
	b := NewBatcher(time.Hour, resolve, func(cm CombinedMessage) { got = cm }, zerolog.Nop())

	msg := inbound("1", "still goes through")
	msg.RefMessageID = "gone"
	b.Add(msg)
	b.Flush("u1:c1")

	assert.Nil(t, got.Reply)
	assert.Equal(t, "still goes through", got.Content)
}

func TestBatcherKeysByAuthorAndChannel(t *testing.T) {
	flushed := map[string]string{}
	b := NewBatcher(time.Hour, nil, func(cm CombinedMessage) {
		flushed[cm.AuthorID+":"+cm.ChannelID] = cm.Content
	}, zerolog.Nop())

	a := inbound("1", "from alex")
	other := inbound("2", "from sam")
	other.AuthorID = "u2"
	other.AuthorName = "sam"
	b.Add(a)
	b.Add(other)
	require.Equal(t, 2, b.Pending())

	b.FlushAll()
	assert.Equal(t, "from alex", flushed["u1:c1"])
	assert.Equal(t, "from sam", flushed["u2:c1"])
}
