package mind

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/server-muse/internal/ai"
	"github.com/keshon/server-muse/internal/memory"
	"github.com/keshon/server-muse/internal/metrics"
	"github.com/keshon/server-muse/internal/settings"
)

// MaxMessageLen is the per-message send limit of the transport.
const MaxMessageLen = 2000

var apologyLines = []string{
	"ugh, my head's not working right now. ask me again in a bit?",
	"sorry, I blanked completely. try me again later",
	"can't think straight right now, give me a minute",
}

// Emitter receives pipeline events for the dashboard. Implementations
// must not block.
type Emitter interface {
	Activity(identityKey, channelID, content string)
	PromptSubmitted(identityKey, engine string, messageCount int)
	ResponseReceived(identityKey string, trace ai.Trace, reply string)
	AwayChanged(away bool, reason string)
	PendingIdentity(userID, userName, content string)
}

// NoopEmitter drops every event. Used when the dashboard is disabled
// and in tests.
type NoopEmitter struct{}

func (NoopEmitter) Activity(string, string, string)           {}
func (NoopEmitter) PromptSubmitted(string, string, int)       {}
func (NoopEmitter) ResponseReceived(string, ai.Trace, string) {}
func (NoopEmitter) AwayChanged(bool, string)                  {}
func (NoopEmitter) PendingIdentity(string, string, string)    {}

// Snapshot is the runner's state view for the dashboard.
type Snapshot struct {
	Role           string     `json:"role"`
	Away           bool       `json:"away"`
	AwayReason     AwayReason `json:"away_reason,omitempty"`
	AwayUntil      string     `json:"away_until,omitempty"`
	PendingBuffers int        `json:"pending_buffers"`
	PrimaryEngine  string     `json:"primary_engine"`
	Mood           string     `json:"mood"`
	Energy         string     `json:"energy"`
}

// Runner wires the gate, presence, batcher, composer, memory, and AI
// dispatch into one message pipeline. Call HandleMessage from the
// transport's message handler.
type Runner struct {
	cfg      *Config
	char     *Character
	store    memory.Store
	settings *settings.Storage
	provider *ai.MultiProvider
	platform Platform
	log      zerolog.Logger
	emitter  Emitter

	gate     *Gate
	presence *Presence
	batcher  *Batcher
	composer *Composer

	mu          sync.Mutex
	inFlight    map[string]bool
	extractBuf  map[string][]memory.ChatEntry
	pending     map[string]InboundMessage
	communities map[string]string

	nowFn func() time.Time
	// sleepFn and fetchImage are swapped out in tests.
	sleepFn    func(time.Duration)
	fetchImage func(url string) []byte
}

// NewRunner builds the pipeline. platform may be nil until the
// transport is connected (SetPlatform).
func NewRunner(cfg *Config, char *Character, store memory.Store, st *settings.Storage, provider *ai.MultiProvider, log zerolog.Logger) *Runner {
	presence := NewPresence(cfg)
	r := &Runner{
		cfg:         cfg,
		char:        char,
		store:       store,
		settings:    st,
		provider:    provider,
		log:         log,
		emitter:     NoopEmitter{},
		presence:    presence,
		gate:        NewGate(cfg, presence),
		composer:    NewComposer(char),
		inFlight:    make(map[string]bool),
		extractBuf:  make(map[string][]memory.ChatEntry),
		pending:     make(map[string]InboundMessage),
		communities: make(map[string]string),
		nowFn:       time.Now,
		sleepFn:     time.Sleep,
		fetchImage:  downloadImage,
	}
	r.batcher = NewBatcher(cfg.BatchWindow, r.resolveReply, r.onFlush, log)
	return r
}

// SetPlatform attaches the transport. Must be called before messages
// flow.
func (r *Runner) SetPlatform(p Platform) { r.platform = p }

// SetEmitter attaches the dashboard event sink.
func (r *Runner) SetEmitter(e Emitter) {
	if e != nil {
		r.emitter = e
	}
}

// RegisterCommunityName teaches the runner a community's display name
// so private messages can reference it.
func (r *Runner) RegisterCommunityName(name, communityID string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || communityID == "" {
		return
	}
	r.mu.Lock()
	r.communities[name] = communityID
	r.mu.Unlock()
}

// Presence exposes the away simulator for transports and tools.
func (r *Runner) Presence() *Presence { return r.presence }

func (r *Runner) identity(authorID, communityID string) memory.Identity {
	return memory.Identity{Role: r.cfg.Role, UserID: authorID, CommunityID: communityID}
}

// HandleMessage runs the ingress half of the pipeline: gate, away
// transitions, batching. Returns quickly; the reply happens on the
// batcher's flush.
func (r *Runner) HandleMessage(msg InboundMessage) {
	now := r.nowFn()
	if msg.At.IsZero() {
		msg.At = now
	}
	id := r.identity(msg.AuthorID, msg.CommunityID)

	metrics.MessagesSeen.Inc()
	r.emitter.Activity(id.Key(), msg.ChannelID, msg.Content)

	// Unknown people cannot open a private thread without approval.
	if msg.CommunityID == "" && !r.settings.IsApproved(msg.AuthorID) {
		r.mu.Lock()
		_, seen := r.pending[msg.AuthorID]
		r.pending[msg.AuthorID] = msg
		r.mu.Unlock()
		if !seen {
			r.log.Info().Str("user", msg.AuthorID).Msg("private message from unapproved user, holding")
			r.emitter.PendingIdentity(msg.AuthorID, msg.AuthorName, msg.Content)
		}
		return
	}

	if !r.settings.AutoReplyEnabled(id.Key()) {
		return
	}

	var guild *settings.GuildSettings
	if msg.CommunityID != "" {
		guild, _ = r.settings.Guild(msg.CommunityID)
	}
	rel := r.store.Relationship(id)

	if !r.gate.ShouldRespond(msg, guild, rel, now) {
		return
	}
	metrics.MessagesAccepted.Inc()

	guildCap := 0
	if guild != nil {
		guildCap = guild.HourlyCap
	}
	if wentAway, excuse := r.presence.Observe(msg.CommunityID, guildCap, now); wentAway {
		_, reason, _ := r.presence.State()
		metrics.AwayTransitions.WithLabelValues(string(reason)).Inc()
		r.emitter.AwayChanged(true, string(reason))
		r.log.Info().Str("reason", string(reason)).Msg("going away")
		if err := r.platform.SendMessage(msg.ChannelID, excuse); err != nil {
			r.log.Error().Err(err).Msg("excuse send failed")
		}
		return
	}

	r.batcher.Add(msg)
}

func (r *Runner) resolveReply(channelID, messageID string) (*ReplyContext, error) {
	author, content, err := r.platform.FetchMessage(channelID, messageID)
	if err != nil {
		return nil, err
	}
	return &ReplyContext{Author: author, Content: content}, nil
}

// onFlush runs the egress half: compose, generate, humanize, send,
// remember.
func (r *Runner) onFlush(cm CombinedMessage) {
	id := r.identity(cm.AuthorID, cm.CommunityID)
	key := id.Key()

	r.mu.Lock()
	if r.inFlight[key] {
		r.mu.Unlock()
		r.log.Debug().Str("identity", key).Msg("reply already in flight, dropping turn")
		return
	}
	r.inFlight[key] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inFlight, key)
		r.mu.Unlock()
	}()

	if cm.IsBatched {
		metrics.BatchedTurns.Inc()
	}

	r.mu.Lock()
	known := make(map[string]string, len(r.communities))
	for k, v := range r.communities {
		known[k] = v
	}
	r.mu.Unlock()

	view := BuildMemoryView(r.store, id, cm.Content, known)
	if cm.CommunityID != "" {
		view.CommunityName = cm.CommunityID
	}
	history := r.store.Transcript(id)
	agentMood := r.store.Mood(r.cfg.Role)

	situation := ""
	if cm.Reply != nil {
		situation = fmt.Sprintf("They are replying to an earlier message from %s: %q.", cm.Reply.Author, cm.Reply.Content)
	}
	if cm.IsBatched {
		if situation != "" {
			situation += " "
		}
		situation += "They sent several messages in a row; treat them as one thought."
	}

	// Transcript roles are canonical: "user" or the agent role. Author
	// display names never land in Role.
	turn := memory.ChatEntry{
		Role:    "user",
		Content: cm.Content,
		Time:    r.nowFn(),
		Context: contextLabel(cm.CommunityID),
	}
	turns := append(history, turn)
	msgs := r.composer.Structured(turns, view, agentMood, situation)

	req := ai.Request{
		Messages: msgs,
		// Text-only engines get the composer's flat rendering instead of
		// a mechanical role-prefixed join.
		Text:        r.composer.Flattened(turns, view, agentMood, situation),
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	}
	if len(cm.Attachments) > 0 {
		req.Image = r.fetchImage(cm.Attachments[0])
	}

	r.emitter.PromptSubmitted(key, r.provider.Primary(), len(msgs))
	reply, err := r.provider.Generate(req)
	trace := r.provider.LastTrace()
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("generate").Inc()
		r.log.Error().Err(err).Str("identity", key).Msg("generation failed")
		apology := apologyLines[int(r.nowFn().UnixNano())%len(apologyLines)]
		if sendErr := r.platform.SendMessage(cm.ChannelID, apology); sendErr != nil {
			r.log.Error().Err(sendErr).Msg("apology send failed")
		}
		return
	}
	metrics.Replies.WithLabelValues(trace.Engine, fmt.Sprintf("%t", trace.WasFallback)).Inc()
	r.emitter.ResponseReceived(key, trace, reply)

	delay := TypingDelay(len(reply), agentMood.Energy, nil)
	if err := r.platform.SendTyping(cm.ChannelID); err != nil {
		r.log.Debug().Err(err).Msg("typing indicator failed")
	}
	r.sleepFn(delay)

	for _, chunk := range splitMessage(reply, MaxMessageLen) {
		if err := r.platform.SendMessage(cm.ChannelID, chunk); err != nil {
			r.log.Error().Err(err).Str("channel", cm.ChannelID).Msg("send failed")
			return
		}
		r.sleepFn(200 * time.Millisecond)
	}

	botTurn := memory.ChatEntry{
		Role:    r.char.Role,
		Content: reply,
		Time:    r.nowFn(),
		Context: contextLabel(cm.CommunityID),
	}
	if err := r.store.AppendTranscript(id, turn, botTurn); err != nil {
		r.log.Error().Err(err).Str("identity", key).Msg("transcript save failed")
	}

	r.accumulateForExtraction(id, turn, botTurn)
	r.driftMood(agentMood)
}

func contextLabel(communityID string) string {
	if communityID == "" {
		return "dm"
	}
	return "server:" + communityID
}

// accumulateForExtraction buffers turns per identity and runs the
// extraction pass once the configured batch size is reached.
func (r *Runner) accumulateForExtraction(id memory.Identity, turns ...memory.ChatEntry) {
	key := id.Key()
	r.mu.Lock()
	r.extractBuf[key] = append(r.extractBuf[key], turns...)
	buf := r.extractBuf[key]
	ready := r.cfg.ExtractBatchSize > 0 && len(buf) >= r.cfg.ExtractBatchSize
	if ready {
		delete(r.extractBuf, key)
	}
	r.mu.Unlock()
	if !ready {
		return
	}

	rel := r.store.Relationship(id)
	res, err := Extract(r.provider, buf, rel)
	if err != nil {
		metrics.Extractions.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Str("identity", key).Msg("memory extraction failed")
		return
	}
	if res.Empty() {
		metrics.Extractions.WithLabelValues("empty").Inc()
		return
	}
	if err := MergeExtraction(r.store, id, res); err != nil {
		metrics.Extractions.WithLabelValues("error").Inc()
		r.log.Error().Err(err).Str("identity", key).Msg("memory merge failed")
		return
	}
	metrics.Extractions.WithLabelValues("ok").Inc()
	r.log.Info().Str("identity", key).Int("facts", len(res.Facts)).Msg("memory updated")
}

// driftMood nudges the agent mood singleton with conversation load.
func (r *Runner) driftMood(current *memory.MoodState) {
	load := r.presence.LoadFactor(r.nowFn())
	next := *current
	switch {
	case load > 0.8:
		next.Mood, next.Energy = "tired", "tired"
	case load > 0.5:
		next.Energy = "normal"
	case load < 0.1 && current.Energy == "tired":
		next.Energy = "normal"
		next.Mood = "chill"
	}
	if next.Mood == current.Mood && next.Energy == current.Energy {
		return
	}
	if err := r.store.SaveMood(r.cfg.Role, &next); err != nil {
		r.log.Error().Err(err).Msg("mood save failed")
	}
}

// AcceptPendingIdentity approves a held private sender and replays
// their held message through the pipeline.
func (r *Runner) AcceptPendingIdentity(userID string) bool {
	r.mu.Lock()
	msg, ok := r.pending[userID]
	delete(r.pending, userID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	if err := r.settings.Approve(userID); err != nil {
		r.log.Error().Err(err).Str("user", userID).Msg("approval save failed")
	}
	r.log.Info().Str("user", userID).Msg("pending user approved")
	r.HandleMessage(msg)
	return true
}

// RejectPendingIdentity drops a held private sender without approval.
func (r *Runner) RejectPendingIdentity(userID string) {
	r.mu.Lock()
	delete(r.pending, userID)
	r.mu.Unlock()
}

// SetBotState forces or clears the away state (dashboard command).
func (r *Runner) SetBotState(away bool, reason string, until time.Time) {
	if away {
		if until.IsZero() {
			until = r.nowFn().Add(TiredAwayDuration)
		}
		r.presence.ForceAway(AwayReason(reason), until)
	} else {
		r.presence.ClearAway()
	}
	r.emitter.AwayChanged(away, reason)
}

// ToggleAutoReply flips auto-reply for one identity key.
func (r *Runner) ToggleAutoReply(identityKey string, enabled bool) {
	if err := r.settings.SetAutoReply(identityKey, enabled); err != nil {
		r.log.Error().Err(err).Str("identity", identityKey).Msg("auto-reply toggle save failed")
	}
}

// SetPrimaryProvider switches the dispatch chain's primary engine.
func (r *Runner) SetPrimaryProvider(engine string) error {
	return r.provider.SetPrimary(engine)
}

// Snapshot returns the dashboard state view.
func (r *Runner) Snapshot() Snapshot {
	away, reason, until := r.presence.State()
	mood := r.store.Mood(r.cfg.Role)
	s := Snapshot{
		Role:           r.cfg.Role,
		Away:           away,
		AwayReason:     reason,
		PendingBuffers: r.batcher.Pending(),
		PrimaryEngine:  r.provider.Primary(),
		Mood:           mood.Mood,
		Energy:         mood.Energy,
	}
	if !until.IsZero() {
		s.AwayUntil = until.Format(time.RFC3339)
	}
	return s
}

// FlushAll force-flushes every open batch buffer. Used on shutdown so
// buffered turns are not lost.
func (r *Runner) FlushAll() {
	r.batcher.FlushAll()
}

func downloadImage(url string) []byte {
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil
	}
	return b
}

func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut == -1 {
			cut = limit
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}
