package mind

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/settings"
)

type sentMessage struct {
	Channel string
	Text    string
}

type fakePlatform struct {
	mu     sync.Mutex
	sent   []sentMessage
	typing int
}

func (f *fakePlatform) FetchMessage(channelID, messageID string) (string, string, error) {
	return "muse", "the original", nil
}

func (f *fakePlatform) SendTyping(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakePlatform) SendMessage(channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Channel: channelID, Text: text})
	return nil
}

func (f *fakePlatform) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type runnerFixture struct {
	runner   *Runner
	platform *fakePlatform
	store    memory.Store
	settings *settings.Storage
	provider *stubProvider
}

func newRunnerFixture(t *testing.T, reply string, genErr error) *runnerFixture {
	t.Helper()
	dir := t.TempDir()

	st, err := settings.New(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	store := memory.NewFileStore(dir)
	stub := &stubProvider{reply: reply, err: genErr}
	multi := ai.NewMultiFromProviders(stub, nil, false)

	cfg := DefaultConfig("muse")
	cfg.BatchWindow = time.Hour // flushed by hand in tests
	char := testCharacter()

	r := NewRunner(&cfg, char, store, st, multi, zerolog.Nop())
	platform := &fakePlatform{}
	r.SetPlatform(platform)
	r.sleepFn = func(time.Duration) {}
	r.nowFn = func() time.Time { return at(12) }
	r.fetchImage = func(string) []byte { return nil }

	return &runnerFixture{runner: r, platform: platform, store: store, settings: st, provider: stub}
}

func (f *runnerFixture) approveAndSend(msg InboundMessage) {
	f.settings.Approve(msg.AuthorID)
	f.runner.HandleMessage(msg)
	f.runner.batcher.Flush(bufferKey(msg))
}

func TestRunnerRepliesToApprovedDM(t *testing.T) {
	f := newRunnerFixture(t, "hey alex, good to see you", nil)
	f.approveAndSend(inbound("1", "hi muse"))

	sent := f.platform.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "c1", sent[0].Channel)
	assert.Equal(t, "hey alex, good to see you", sent[0].Text)
	assert.Equal(t, 1, f.platform.typing, "typing indicator precedes the reply")

	id := memory.Identity{Role: "muse", UserID: "u1"}
	transcript := f.store.Transcript(id)
	require.Len(t, transcript, 2)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "hi muse", transcript[0].Content)
	assert.Equal(t, "muse", transcript[1].Role)
	assert.Equal(t, "dm", transcript[1].Context)
}

func TestRunnerTranscriptRolesStayCanonical(t *testing.T) {
	f := newRunnerFixture(t, "hello you", nil)

	// The author's display name collides with the agent role on purpose.
	msg := inbound("1", "it's me")
	msg.AuthorName = "muse"
	f.approveAndSend(msg)

	id := memory.Identity{Role: "muse", UserID: "u1"}
	transcript := f.store.Transcript(id)
	require.Len(t, transcript, 2)
	assert.Equal(t, "user", transcript[0].Role)
	assert.Equal(t, "muse", transcript[1].Role)

	// A second turn composes the stored history; the earlier human turn
	// must come back as a user message, not an assistant one.
	second := inbound("2", "still me")
	second.AuthorName = "muse"
	f.runner.HandleMessage(second)
	f.runner.batcher.Flush(bufferKey(second))

	msgs := f.provider.lastReq.Messages
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
}

func TestRunnerHoldsUnapprovedDM(t *testing.T) {
	f := newRunnerFixture(t, "should not be sent", nil)

	f.runner.HandleMessage(inbound("1", "hello?"))
	f.runner.batcher.FlushAll()
	assert.Empty(t, f.platform.messages(), "unknown senders get no reply until approved")

	ok := f.runner.AcceptPendingIdentity("u1")
	require.True(t, ok)
	f.runner.batcher.FlushAll()

	sent := f.platform.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "should not be sent", sent[0].Text)

	assert.False(t, f.runner.AcceptPendingIdentity("u1"), "nothing left to approve")
}

func TestRunnerSendsApologyWhenProvidersFail(t *testing.T) {
	f := newRunnerFixture(t, "", errors.New("engine down"))
	f.approveAndSend(inbound("1", "you there?"))

	sent := f.platform.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, apologyLines, sent[0].Text)

	id := memory.Identity{Role: "muse", UserID: "u1"}
	assert.Empty(t, f.store.Transcript(id), "failed turns are not recorded")
}

func TestRunnerChunksLongReplies(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "0123456789"
	}
	f := newRunnerFixture(t, long, nil)
	f.approveAndSend(inbound("1", "tell me everything"))

	sent := f.platform.messages()
	require.Len(t, sent, 2)
	assert.LessOrEqual(t, len(sent[0].Text), MaxMessageLen)
	assert.LessOrEqual(t, len(sent[1].Text), MaxMessageLen)
}

func TestRunnerSendsSleepExcuseOutsideActiveHours(t *testing.T) {
	f := newRunnerFixture(t, "unused", nil)
	f.runner.nowFn = func() time.Time { return at(3) }

	f.settings.Approve("u1")
	f.runner.HandleMessage(inbound("1", "psst"))
	f.runner.batcher.FlushAll()

	sent := f.platform.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sleepExcuses, sent[0].Text)

	away, reason, _ := f.runner.Presence().State()
	assert.True(t, away)
	assert.Equal(t, AwayTimeToSleep, reason)

	// Silent while away, no second excuse.
	f.runner.HandleMessage(inbound("2", "hello??"))
	f.runner.batcher.FlushAll()
	assert.Len(t, f.platform.messages(), 1)
}

func TestRunnerInFlightGuardDropsConcurrentTurn(t *testing.T) {
	f := newRunnerFixture(t, "slow answer", nil)

	release := make(chan struct{})
	started := make(chan struct{})
	f.runner.sleepFn = func(time.Duration) {}
	blockOnce := sync.Once{}
	f.runner.provider = ai.NewMultiFromProviders(&blockingProvider{
		started: started, release: release, once: &blockOnce, reply: "slow answer",
	}, nil, false)

	f.settings.Approve("u1")
	msg := inbound("1", "first")
	f.runner.HandleMessage(msg)

	done := make(chan struct{})
	go func() {
		f.runner.batcher.Flush(bufferKey(msg))
		close(done)
	}()
	<-started

	// Second turn for the same identity while the first is generating.
	second := inbound("2", "second")
	f.runner.HandleMessage(second)
	f.runner.batcher.Flush(bufferKey(second))

	close(release)
	<-done

	assert.Len(t, f.platform.messages(), 1, "the overlapping turn is dropped")
}

type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	once    *sync.Once
	reply   string
}

func (b *blockingProvider) Name() string       { return "blocking" }
func (b *blockingProvider) SupportsChat() bool { return true }
func (b *blockingProvider) Generate(ai.Request) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.reply, nil
}

func TestRunnerExtractionRunsAtBatchSize(t *testing.T) {
	f := newRunnerFixture(t, "sure", nil)
	f.runner.cfg.ExtractBatchSize = 2
	f.provider.reply = "sure"

	f.settings.Approve("u1")
	msg := inbound("1", "I moved to Lisbon last month")
	f.runner.HandleMessage(msg)

	// The turn itself plus the reply hit the batch size; the next
	// Generate call is the extraction pass.
	f.provider.reply = `{"facts":["moved to Lisbon"],"trust_level":6}`
	f.runner.batcher.Flush(bufferKey(msg))

	id := memory.Identity{Role: "muse", UserID: "u1"}
	rel := f.store.Relationship(id)
	assert.Contains(t, rel.Facts, "moved to Lisbon")
	assert.Equal(t, 6, rel.TrustLevel)
}

type textOnlyStub struct {
	lastReq ai.Request
}

func (s *textOnlyStub) Name() string       { return "text-only" }
func (s *textOnlyStub) SupportsChat() bool { return false }
func (s *textOnlyStub) Generate(req ai.Request) (string, error) {
	s.lastReq = req
	return "short answer", nil
}

func TestRunnerFlatRenderingReachesTextEngines(t *testing.T) {
	f := newRunnerFixture(t, "unused", nil)
	stub := &textOnlyStub{}
	f.runner.provider = ai.NewMultiFromProviders(stub, nil, false)

	f.approveAndSend(inbound("1", "hi"))

	require.Nil(t, stub.lastReq.Messages)
	assert.Contains(t, stub.lastReq.Text, "Now reply as Muse.")
	assert.Contains(t, stub.lastReq.Text, "hi")
}

func TestRunnerSnapshot(t *testing.T) {
	f := newRunnerFixture(t, "ok", nil)
	s := f.runner.Snapshot()
	assert.Equal(t, "muse", s.Role)
	assert.False(t, s.Away)
	assert.Equal(t, "stub", s.PrimaryEngine)

	f.runner.SetBotState(true, string(AwayTired), time.Time{})
	s = f.runner.Snapshot()
	assert.True(t, s.Away)
	assert.Equal(t, AwayTired, s.AwayReason)
	assert.NotEmpty(t, s.AwayUntil)
}
