package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"careerlens/internal/domain"
	"careerlens/internal/generator"
	"careerlens/internal/policy"
	"careerlens/internal/ports"
	"careerlens/internal/transcript"
)

// Session orchestrates one interview or practice conversation: it owns the
// transcript, asks the policy and generator for each AI turn, and hands
// rendering and capture to the speech channel.
type Session struct {
	id      string
	cfg     domain.SessionConfig
	profile *domain.UserProfile
	deps    Deps
	opts    Config
	logger  *slog.Logger
	store   *transcript.Store

	inbox      chan any
	done       chan struct{}
	finishOnce sync.Once

	mu            sync.Mutex
	phase         domain.Phase
	exchangeCount int
	feedback      map[int]domain.FeedbackReport
	message       string
	startedAt     time.Time
	endedAt       time.Time
	endReason     domain.SessionStateReason
	endRequested  bool
	running       bool
	cancel        context.CancelFunc
	channel       ports.SpeechChannel
	events        ports.EventSink
	finalizer     sessionFinalizer

	// Owned by the loop goroutine.
	opCtx          context.Context
	turn           uint64
	endAfterRender bool
	pendingEnd     domain.SessionStateReason
	capture        ports.CaptureSession
	captureSeq     uint64
	restarts       backoff.BackOff
	buffer         utteranceBuffer
	silence        *time.Timer
	silenceGen     uint64
}

// NewSession validates cfg and returns an idle session.
func NewSession(id string, cfg domain.SessionConfig, profile *domain.UserProfile, deps Deps, opts Config) (*Session, error) {
	if cfg.MaxExchanges == 0 && opts.MaxExchanges > 0 {
		cfg.MaxExchanges = opts.MaxExchanges
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if deps.Policy == nil {
		deps.Policy = policy.New(opts.WrapUpLead)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Session{
		id:       id,
		cfg:      cfg,
		profile:  profile,
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger.With("session", id, "mode", cfg.Mode),
		store:    transcript.NewStore(),
		inbox:    make(chan any, 64),
		done:     make(chan struct{}),
		phase:    domain.PhaseIdle,
		feedback: map[int]domain.FeedbackReport{},
		events:   nopSink{},
		restarts: backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.CaptureRestartDelay), uint64(opts.MaxCaptureRestarts)),
	}
	s.finalizer = newSessionFinalizer(deps.Normalizer, deps.Archive, s.events)
	return s, nil
}

func (s *Session) ID() string                          { return s.id }
func (s *Session) Config() domain.SessionConfig        { return s.cfg }
func (s *Session) Profile() *domain.UserProfile        { return s.profile }
func (s *Session) Done() <-chan struct{}               { return s.done }
func (s *Session) Transcript() []domain.TranscriptItem { return s.store.Items() }

// Start acquires the speech channel and begins the session with the opening
// turn. A failed acquisition leaves the session idle so Start can be retried.
func (s *Session) Start(ctx context.Context, channel ports.SpeechChannel, events ports.EventSink) (*ports.Handshake, error) {
	if events == nil {
		events = nopSink{}
	}

	s.mu.Lock()
	switch s.phase {
	case domain.PhaseIdle:
	case domain.PhaseEnding, domain.PhaseFinished:
		s.mu.Unlock()
		return nil, domain.ErrNoActiveSession
	default:
		s.mu.Unlock()
		return nil, domain.ErrAlreadyStarted
	}
	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.opCtx = opCtx
	s.cancel = cancel
	s.channel = channel
	s.events = events
	s.finalizer = newSessionFinalizer(s.deps.Normalizer, s.deps.Archive, events)
	s.phase = domain.PhaseStarting
	s.mu.Unlock()
	events.SessionStateChanged(domain.PhaseStarting, domain.SessionReasonAcquiring)

	acquireCtx, acquireCancel := context.WithCancel(opCtx)
	stop := context.AfterFunc(ctx, acquireCancel)
	handshake, err := channel.Acquire(acquireCtx, s.cfg)
	stop()
	acquireCancel()

	s.mu.Lock()
	if s.endRequested {
		if err != nil {
			s.channel = nil
		}
		reason := s.endReason
		s.mu.Unlock()
		s.finish(reason)
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		s.phase = domain.PhaseIdle
		s.cancel = nil
		s.message = err.Error()
		s.mu.Unlock()
		cancel()
		s.logger.Warn("speech channel acquisition failed", "error", err)
		events.SessionError(domain.ErrorCodeResources, err.Error())
		events.SessionStateChanged(domain.PhaseIdle, domain.SessionReasonResourcesUnavailable)
		return nil, fmt.Errorf("%w: %v", domain.ErrResourceAcquisition, err)
	}
	s.startedAt = s.deps.Now()
	s.running = true
	s.message = ""
	s.mu.Unlock()

	if handshake != nil {
		events.HandshakeReady(*handshake)
	}
	s.logger.Info("session started", "maxExchanges", s.cfg.MaxExchanges)
	go s.run()
	return handshake, nil
}

// SubmitUtterance completes the user's turn with typed text. It is accepted
// only while the session is waiting for the user.
func (s *Session) SubmitUtterance(ctx context.Context, text string) error {
	s.mu.Lock()
	phase, ending := s.phase, s.endRequested
	s.mu.Unlock()

	switch {
	case ending, phase == domain.PhaseIdle, phase == domain.PhaseEnding, phase == domain.PhaseFinished:
		return domain.ErrNoActiveSession
	case phase == domain.PhaseStarting:
		return domain.ErrTurnInProgress
	}

	reply := make(chan error, 1)
	if !s.post(utteranceSubmitted{text: text, reply: reply}) {
		return domain.ErrNoActiveSession
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return domain.ErrNoActiveSession
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End stops the session from any phase and waits for teardown. Later calls
// are no-ops.
func (s *Session) End(ctx context.Context) error {
	return s.terminate(ctx, domain.SessionReasonUserEnded)
}

func (s *Session) terminate(ctx context.Context, reason domain.SessionStateReason) error {
	s.mu.Lock()
	if !s.endRequested {
		s.endRequested = true
		s.endReason = reason
		phase, running, cancel := s.phase, s.running, s.cancel
		if phase == domain.PhaseIdle {
			s.phase = domain.PhaseEnding
		}
		s.mu.Unlock()

		switch {
		case running:
			cancel()
			s.post(endRequested{reason: reason})
		case phase == domain.PhaseIdle:
			s.finish(reason)
		default:
			// Start is still acquiring; it finishes the session itself.
			cancel()
		}
	} else {
		s.mu.Unlock()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot for callers outside the session loop.
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Status{
		ID:            s.id,
		Phase:         s.phase,
		Active:        s.phase != domain.PhaseIdle && s.phase != domain.PhaseFinished,
		Mode:          s.cfg.Mode,
		ExchangeCount: s.exchangeCount,
		MaxExchanges:  s.cfg.MaxExchanges,
		StartedAt:     s.startedAt,
		Message:       s.message,
	}
}

// Feedback returns the practice feedback keyed by transcript index.
func (s *Session) Feedback() map[int]domain.FeedbackReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]domain.FeedbackReport, len(s.feedback))
	for k, v := range s.feedback {
		out[k] = v
	}
	return out
}

func (s *Session) Record() domain.SessionRecord {
	items := s.store.Items()
	feedback := s.Feedback()
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionRecord{
		ID:            s.id,
		Config:        s.cfg,
		Transcript:    items,
		Feedback:      feedback,
		ExchangeCount: s.exchangeCount,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		EndReason:     s.endReason,
	}
}

func (s *Session) run() {
	s.beginGeneration()
	for s.pendingEnd == "" {
		s.handle(<-s.inbox)
	}
	s.teardown(s.pendingEnd)
}

func (s *Session) handle(ev any) {
	if _, ok := ev.(endRequested); !ok && s.ending() {
		if u, ok := ev.(utteranceSubmitted); ok {
			u.reply <- domain.ErrNoActiveSession
		}
		return
	}

	switch ev := ev.(type) {
	case generationDone:
		s.onGeneration(ev)
	case renderDone:
		s.onRender(ev)
	case partialCaptured:
		s.onPartial(ev)
	case silenceElapsed:
		s.onSilence(ev)
	case captureEnded:
		s.onCaptureEnded(ev)
	case captureRearm:
		if ev.turn == s.turn && s.phaseIs(domain.PhaseAwaitingResponse) {
			s.armCapture()
		}
	case utteranceSubmitted:
		ev.reply <- s.onUtterance(ev.text)
	case endRequested:
		s.endWith(ev.reason)
	}
}

func (s *Session) beginGeneration() {
	s.turn++
	turn := s.turn
	items := s.store.Items()

	s.mu.Lock()
	count := s.exchangeCount
	s.mu.Unlock()

	directive, err := s.deps.Policy.Next(items, s.cfg, count)
	if err != nil {
		s.logger.Error("turn policy rejected session", "error", err)
		s.notify(domain.ErrorCodeConfig, err.Error())
		s.endWith(domain.SessionReasonInvalidTurn)
		return
	}

	s.setPhase(domain.PhaseActive, domain.SessionReasonGenerating)
	req := generator.Request{Profile: s.profile, Transcript: items, Config: s.cfg, Directive: directive}
	ctx := s.opCtx
	go func() {
		res, err := s.deps.Generator.Generate(ctx, req)
		s.post(generationDone{turn: turn, directive: directive, res: res, err: err})
	}()
}

func (s *Session) onGeneration(ev generationDone) {
	if ev.turn != s.turn {
		s.logger.Debug("discarding stale generation", "turn", ev.turn)
		return
	}
	if ev.err != nil {
		s.logger.Warn("turn generation failed", "error", ev.err)
		s.notify(domain.ErrorCodeGeneration, ev.err.Error())
		s.listen(domain.SessionReasonGenerationFailed)
		return
	}

	index, item, err := s.appendItem(domain.SpeakerAI, ev.res.ResponseText)
	if err != nil {
		s.logger.Error("transcript rejected ai turn", "error", err)
		s.notify(domain.ErrorCodeInvalidTurn, err.Error())
		s.endWith(domain.SessionReasonInvalidTurn)
		return
	}

	s.mu.Lock()
	s.exchangeCount++
	if ev.res.Feedback != nil {
		s.feedback[index] = *ev.res.Feedback
	}
	events := s.events
	s.mu.Unlock()
	events.TurnCommitted(index, item, ev.res.Feedback)

	s.endAfterRender = ev.directive.FinalTurn || (ev.directive.ShouldWrapUp && ev.res.IsEndOfSession)
	reason := domain.SessionReasonSpeaking
	if ev.directive.ShouldWrapUp {
		reason = domain.SessionReasonWrappingUp
	}

	s.stopCapture()
	s.setPhase(domain.PhaseSpeaking, reason)
	turn, ctx, channel, text := s.turn, s.opCtx, s.channel, item.Text
	go func() {
		err := channel.Render(ctx, text)
		s.post(renderDone{turn: turn, err: err})
	}()
}

func (s *Session) onRender(ev renderDone) {
	if ev.turn != s.turn {
		return
	}
	reason := domain.SessionReasonListening
	if ev.err != nil {
		s.logger.Warn("render failed", "error", ev.err)
		s.notify(domain.ErrorCodeRender, fmt.Errorf("%w: %v", domain.ErrRender, ev.err).Error())
		reason = domain.SessionReasonRenderFailed
	}
	if s.endAfterRender {
		s.endWith(domain.SessionReasonCompleted)
		return
	}
	s.listen(reason)
}

func (s *Session) onPartial(ev partialCaptured) {
	if ev.seq != s.captureSeq || !s.phaseIs(domain.PhaseAwaitingResponse) {
		return
	}
	text := strings.TrimSpace(ev.text)
	if text == "" {
		return
	}
	s.buffer.SetPartial(text)
	s.sink().PartialTranscript(s.buffer.Text())
	s.armSilence()
}

func (s *Session) onSilence(ev silenceElapsed) {
	if ev.gen != s.silenceGen || !s.phaseIs(domain.PhaseAwaitingResponse) {
		return
	}
	if text := s.buffer.Text(); text != "" {
		_ = s.completeUtterance(text)
	}
}

func (s *Session) onCaptureEnded(ev captureEnded) {
	if ev.seq != s.captureSeq || s.capture == nil {
		return
	}
	s.capture = nil
	s.buffer.Carry()
	if s.phaseIs(domain.PhaseAwaitingResponse) {
		s.scheduleCaptureRestart(ev.err)
	}
}

func (s *Session) onUtterance(text string) error {
	if !s.phaseIs(domain.PhaseAwaitingResponse) {
		return domain.ErrTurnInProgress
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty utterance", domain.ErrInvalidTurn)
	}
	return s.completeUtterance(text)
}

func (s *Session) completeUtterance(text string) error {
	s.stopCapture()
	s.buffer.Reset()

	index, item, err := s.appendItem(domain.SpeakerUser, s.finalizer.Normalize(text))
	if err != nil {
		s.logger.Error("transcript rejected user turn", "error", err)
		s.notify(domain.ErrorCodeInvalidTurn, err.Error())
		s.endWith(domain.SessionReasonInvalidTurn)
		return err
	}
	s.sink().TurnCommitted(index, item, nil)
	s.beginGeneration()
	return nil
}

// listen re-arms capture after a render or a failed turn.
func (s *Session) listen(reason domain.SessionStateReason) {
	s.restarts.Reset()
	s.setPhase(domain.PhaseAwaitingResponse, reason)
	s.armCapture()
}

// armCapture is a no-op while a capture is already running.
func (s *Session) armCapture() {
	if s.capture != nil {
		return
	}
	cs, err := s.channel.Capture(s.opCtx)
	if err != nil {
		s.scheduleCaptureRestart(err)
		return
	}

	s.captureSeq++
	seq := s.captureSeq
	s.capture = cs
	go func() {
		for text := range cs.Partials() {
			if !s.post(partialCaptured{seq: seq, text: text}) {
				return
			}
		}
		s.post(captureEnded{seq: seq, err: cs.Err()})
	}()
}

func (s *Session) stopCapture() {
	s.stopSilence()
	if s.capture == nil {
		return
	}
	cs := s.capture
	s.capture = nil
	s.captureSeq++
	if err := cs.Stop(); err != nil {
		s.logger.Debug("capture stop", "error", err)
	}
}

func (s *Session) scheduleCaptureRestart(cause error) {
	delay := s.restarts.NextBackOff()
	if delay == backoff.Stop {
		s.logger.Warn("speech capture gave up", "error", cause)
		s.notify(domain.ErrorCodeCapture, "speech capture stopped; type your answer instead")
		return
	}
	s.logger.Info("restarting speech capture", "error", cause, "delay", delay)
	turn := s.turn
	time.AfterFunc(delay, func() { s.post(captureRearm{turn: turn}) })
}

func (s *Session) armSilence() {
	s.stopSilence()
	gen := s.silenceGen
	s.silence = time.AfterFunc(s.opts.SilenceTimeout, func() { s.post(silenceElapsed{gen: gen}) })
}

func (s *Session) stopSilence() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	s.silenceGen++
}

func (s *Session) appendItem(speaker domain.Speaker, text string) (int, domain.TranscriptItem, error) {
	ts := s.deps.Now()
	if last, ok := s.store.Last(); ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}
	item := domain.TranscriptItem{Speaker: speaker, Text: text, Timestamp: ts}
	if err := s.store.Append(item); err != nil {
		return 0, domain.TranscriptItem{}, err
	}
	return s.store.Len() - 1, item, nil
}

// endWith marks the session for teardown once the current event is handled.
func (s *Session) endWith(reason domain.SessionStateReason) {
	s.mu.Lock()
	if !s.endRequested {
		s.endRequested = true
		s.endReason = reason
	}
	reason = s.endReason
	s.mu.Unlock()
	if s.pendingEnd == "" {
		s.pendingEnd = reason
	}
}

func (s *Session) teardown(reason domain.SessionStateReason) {
	s.turn++
	s.setPhase(domain.PhaseEnding, reason)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.stopCapture()
	s.finish(reason)
}

// finish releases the channel, seals the transcript, and archives the
// record. It runs once, from whichever path ended the session.
func (s *Session) finish(reason domain.SessionStateReason) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		channel, cancel := s.channel, s.cancel
		started := !s.startedAt.IsZero()
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if channel != nil {
			ctx, done := context.WithTimeout(context.Background(), s.opts.ReleaseTimeout)
			if err := channel.Release(ctx); err != nil {
				s.logger.Warn("speech channel release failed", "error", err)
				s.notify(domain.ErrorCodeRelease, err.Error())
			}
			done()
		}

		s.store.Seal()
		s.mu.Lock()
		s.endedAt = s.deps.Now()
		s.mu.Unlock()

		if started {
			ctx, done := context.WithTimeout(context.Background(), s.opts.ReleaseTimeout)
			if err := s.finalizer.Archive(ctx, s.Record()); err != nil {
				s.logger.Warn("archive failed", "error", err)
			}
			done()
		}

		s.setPhase(domain.PhaseFinished, reason)
		s.logger.Info("session finished", "reason", reason, "exchanges", s.Status().ExchangeCount)
		close(s.done)
	})
}

func (s *Session) post(ev any) bool {
	select {
	case s.inbox <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) setPhase(phase domain.Phase, reason domain.SessionStateReason) {
	s.mu.Lock()
	s.phase = phase
	events := s.events
	s.mu.Unlock()
	events.SessionStateChanged(phase, reason)
}

func (s *Session) phaseIs(phase domain.Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phase
}

// inProgress reports whether the session has started and not finished.
func (s *Session) inProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != domain.PhaseIdle && s.phase != domain.PhaseFinished
}

func (s *Session) ending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endRequested
}

func (s *Session) notify(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	s.message = detail
	events := s.events
	s.mu.Unlock()
	events.SessionError(code, detail)
}

func (s *Session) sink() ports.EventSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}
