package ai

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Trace describes how the last request was served. Consumed by the
// dashboard; always populated on success.
type Trace struct {
	RequestID   string
	Engine      string
	WasFallback bool
	Errors      []string
}

// MultiProvider tries the primary engine first and walks the fallback
// order on any failure. The first success wins.
type MultiProvider struct {
	mu        sync.Mutex
	primary   Provider
	fallbacks []Provider
	enabled   bool
	limiters  map[string]*rate.Limiter
	lastTrace Trace
}

// NewMultiProvider builds the dispatch chain from engine strings.
// Fallback entries equal to the primary engine are skipped.
func NewMultiProvider(primary string, fallbackOrder []string, fallbackEnabled bool) (*MultiProvider, error) {
	p, err := NewEngine(primary)
	if err != nil {
		return nil, err
	}
	mp := &MultiProvider{
		primary:  p,
		enabled:  fallbackEnabled,
		limiters: make(map[string]*rate.Limiter),
	}
	mp.limiters[p.Name()] = newEngineLimiter()
	for _, engine := range fallbackOrder {
		if engine == primary {
			continue
		}
		fb, err := NewEngine(engine)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", engine, err)
		}
		mp.fallbacks = append(mp.fallbacks, fb)
		mp.limiters[fb.Name()] = newEngineLimiter()
	}
	return mp, nil
}

// NewMultiFromProviders wires an already-built chain. Used by tests and
// callers with custom engines.
func NewMultiFromProviders(primary Provider, fallbacks []Provider, fallbackEnabled bool) *MultiProvider {
	mp := &MultiProvider{
		primary:   primary,
		fallbacks: fallbacks,
		enabled:   fallbackEnabled,
		limiters:  make(map[string]*rate.Limiter),
	}
	mp.limiters[primary.Name()] = newEngineLimiter()
	for _, fb := range fallbacks {
		mp.limiters[fb.Name()] = newEngineLimiter()
	}
	return mp
}

// Local burst protection so one chatty guild cannot hammer an engine.
func newEngineLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(2*time.Second), 5)
}

func (mp *MultiProvider) Name() string       { return "multi" }
func (mp *MultiProvider) SupportsChat() bool { return true }

// SetPrimary promotes the named engine to primary. The previous primary
// joins the head of the fallback order.
func (mp *MultiProvider) SetPrimary(engine string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.primary.Name() == engine {
		return nil
	}
	for i, fb := range mp.fallbacks {
		if fb.Name() == engine {
			old := mp.primary
			mp.primary = fb
			mp.fallbacks = append(mp.fallbacks[:i], mp.fallbacks[i+1:]...)
			mp.fallbacks = append([]Provider{old}, mp.fallbacks...)
			return nil
		}
	}
	p, err := NewEngine(engine)
	if err != nil {
		return err
	}
	old := mp.primary
	mp.primary = p
	mp.fallbacks = append([]Provider{old}, mp.fallbacks...)
	if _, ok := mp.limiters[p.Name()]; !ok {
		mp.limiters[p.Name()] = newEngineLimiter()
	}
	return nil
}

// Primary returns the current primary engine name.
func (mp *MultiProvider) Primary() string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.primary.Name()
}

// LastTrace returns how the most recent Generate was served.
func (mp *MultiProvider) LastTrace() Trace {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	t := mp.lastTrace
	t.Errors = append([]string(nil), mp.lastTrace.Errors...)
	return t
}

// Generate dispatches the request. On total failure the returned error
// is an *AggregateError naming the primary's and the last fallback's
// error texts.
func (mp *MultiProvider) Generate(req Request) (string, error) {
	mp.mu.Lock()
	chain := append([]Provider{mp.primary}, mp.fallbacks...)
	enabled := mp.enabled
	mp.mu.Unlock()

	trace := Trace{RequestID: uuid.NewString()}

	var attempts []string
	for i, p := range chain {
		if i > 0 && !enabled {
			break
		}
		text, err := mp.tryEngine(p, req)
		if err == nil {
			trace.Engine = p.Name()
			trace.WasFallback = i > 0
			trace.Errors = attempts
			mp.setTrace(trace)
			return text, nil
		}
		attempts = append(attempts, err.Error())
	}

	trace.Errors = attempts
	mp.setTrace(trace)

	if len(attempts) == 0 {
		// Cannot happen with a non-empty chain; keep the error shape anyway.
		attempts = []string{"no providers configured"}
	}
	return "", &AggregateError{
		PrimaryErr: attempts[0],
		LastErr:    attempts[len(attempts)-1],
		Attempts:   attempts,
	}
}

func (mp *MultiProvider) tryEngine(p Provider, req Request) (string, error) {
	if lim := mp.limiter(p.Name()); lim != nil && !lim.Allow() {
		return "", &ProviderError{Provider: p.Name(), Kind: ErrRateLimit, Detail: "local rate limit"}
	}
	if !p.SupportsChat() && len(req.Messages) > 0 {
		flat := req
		// A caller-provided flat rendering wins over the generic join.
		if flat.Text == "" {
			flat.Text = FlattenMessages(req.Messages)
		}
		flat.Messages = nil
		flat.Image = nil
		return p.Generate(flat)
	}
	return p.Generate(req)
}

func (mp *MultiProvider) limiter(name string) *rate.Limiter {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.limiters[name]
}

func (mp *MultiProvider) setTrace(t Trace) {
	mp.mu.Lock()
	mp.lastTrace = t
	mp.mu.Unlock()
}
