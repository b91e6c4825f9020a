package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"careerlens/internal/domain"
	"careerlens/internal/generator"
	"careerlens/internal/ports"
)

type fakeChannel struct {
	mu           sync.Mutex
	acquireErr   error
	handshake    *ports.Handshake
	acquireCalls int
	renders      []string
	renderErr    error
	capturing    bool
	overlap      bool
	captures     []*fakeCapture
	captureErr   error
	releaseCalls int
	releaseErr   error
}

func (f *fakeChannel) Acquire(_ context.Context, _ domain.SessionConfig) (*ports.Handshake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireCalls++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.handshake, nil
}

func (f *fakeChannel) Render(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.capturing {
		f.overlap = true
	}
	f.renders = append(f.renders, text)
	return f.renderErr
}

func (f *fakeChannel) Capture(_ context.Context) (ports.CaptureSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	c := &fakeCapture{ch: f, partials: make(chan string, 16)}
	f.capturing = true
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *fakeChannel) Release(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls++
	return f.releaseErr
}

func (f *fakeChannel) latestCapture() *fakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

func (f *fakeChannel) snapshot() (renders []string, captures int, capturing, overlap bool, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.renders...), len(f.captures), f.capturing, f.overlap, f.releaseCalls
}

type fakeCapture struct {
	ch       *fakeChannel
	partials chan string
	once     sync.Once
	err      error
}

func (c *fakeCapture) Partials() <-chan string { return c.partials }
func (c *fakeCapture) Err() error              { return c.err }

func (c *fakeCapture) Stop() error {
	c.once.Do(func() {
		c.ch.mu.Lock()
		c.ch.capturing = false
		c.ch.mu.Unlock()
		close(c.partials)
	})
	return nil
}

func (c *fakeCapture) say(text string) { c.partials <- text }

func (c *fakeCapture) fail(err error) {
	c.err = err
	_ = c.Stop()
}

type genStep struct {
	res domain.GenerationResult
	err error
}

type fakeGenerator struct {
	mu       sync.Mutex
	steps    []genStep
	requests []generator.Request
	// block, when set, holds every call until it is closed. Cancellation is
	// ignored so late results can be observed.
	block chan struct{}
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request) (domain.GenerationResult, error) {
	g.mu.Lock()
	i := len(g.requests)
	g.requests = append(g.requests, req)
	block := g.block
	var step genStep
	switch {
	case len(g.steps) == 0:
		step = genStep{res: domain.GenerationResult{ResponseText: "question"}}
	case i < len(g.steps):
		step = g.steps[i]
	default:
		step = g.steps[len(g.steps)-1]
	}
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	return step.res, step.err
}

func (g *fakeGenerator) snapshot() []generator.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generator.Request(nil), g.requests...)
}

func says(texts ...string) []genStep {
	out := make([]genStep, 0, len(texts))
	for _, text := range texts {
		out = append(out, genStep{res: domain.GenerationResult{ResponseText: text}})
	}
	return out
}

type fakeRules struct {
	err error
}

func (f *fakeRules) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.ReplaceAll(text, "golang", "Go"), nil
}

type fakeArchive struct {
	mu      sync.Mutex
	records []domain.SessionRecord
	err     error
}

func (f *fakeArchive) Save(_ context.Context, record domain.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return f.err
}

func (f *fakeArchive) snapshot() []domain.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SessionRecord(nil), f.records...)
}

type stateEvent struct {
	phase  domain.Phase
	reason domain.SessionStateReason
}

type errorEvent struct {
	code   domain.ErrorCode
	detail string
}

type committedEvent struct {
	index    int
	item     domain.TranscriptItem
	feedback *domain.FeedbackReport
}

type fakeEventSink struct {
	mu         sync.Mutex
	states     []stateEvent
	partials   []string
	turns      []committedEvent
	handshakes []ports.Handshake
	errors     []errorEvent
}

func (f *fakeEventSink) SessionStateChanged(phase domain.Phase, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{phase: phase, reason: reason})
}

func (f *fakeEventSink) PartialTranscript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeEventSink) TurnCommitted(index int, item domain.TranscriptItem, feedback *domain.FeedbackReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, committedEvent{index: index, item: item, feedback: feedback})
}

func (f *fakeEventSink) HandshakeReady(h ports.Handshake) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handshakes = append(f.handshakes, h)
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errorEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateEvent(nil), f.states...)
}

func (f *fakeEventSink) snapshotErrors() []errorEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]errorEvent(nil), f.errors...)
}

func (f *fakeEventSink) snapshotPartials() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.partials...)
}

func (f *fakeEventSink) hasError(code domain.ErrorCode) bool {
	for _, e := range f.snapshotErrors() {
		if e.code == code {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitPhase(t *testing.T, s *Session, phase domain.Phase) {
	t.Helper()
	waitFor(t, "phase "+string(phase), func() bool { return s.Status().Phase == phase })
}

var errBoom = errors.New("boom")

func interviewConfig(maxExchanges int) domain.SessionConfig {
	return domain.SessionConfig{Mode: domain.ModeHR, JobRole: "Product Manager", MaxExchanges: maxExchanges}
}

func testOpts() Config {
	return Config{
		SilenceTimeout:      30 * time.Millisecond,
		CaptureRestartDelay: 5 * time.Millisecond,
		MaxCaptureRestarts:  2,
		ReleaseTimeout:      time.Second,
	}
}

func newTestSession(t *testing.T, cfg domain.SessionConfig, gen *fakeGenerator, archive *fakeArchive, opts Config) *Session {
	t.Helper()
	deps := Deps{Generator: gen, Normalizer: &fakeRules{}}
	if archive != nil {
		deps.Archive = archive
	}
	s, err := NewSession("sess-1", cfg, nil, deps, opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}
