package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// StreamingConfig describes the local microphone and provider stream.
type StreamingConfig struct {
	Audio  ports.AudioConfig
	Stream ports.StreamingConfig
	// ChunkSize fixes the bytes per provider message. Zero sends 100ms
	// frames at the capture rate.
	ChunkSize          int
	StreamCloseTimeout time.Duration
	// RenderTimeout bounds how long a render waits for playback to drain.
	RenderTimeout time.Duration
}

// Streaming is the server-side speech channel: synthesized audio goes to
// a sink and microphone audio is transcribed by a streaming provider.
type Streaming struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	synth    ports.Synthesizer
	sink     ports.AudioSink
	cfg      StreamingConfig
	logger   *slog.Logger

	mu       sync.Mutex
	active   *streamCapture
	released bool
}

func NewStreaming(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	synth ports.Synthesizer,
	sink ports.AudioSink,
	cfg StreamingConfig,
	logger *slog.Logger,
) *Streaming {
	if cfg.StreamCloseTimeout <= 0 {
		cfg.StreamCloseTimeout = 3 * time.Second
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Streaming{
		audio:    audio,
		provider: provider,
		synth:    synth,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
	}
}

// Acquire checks the channel is complete. Local speech has no handshake.
func (s *Streaming) Acquire(context.Context, domain.SessionConfig) (*ports.Handshake, error) {
	if s.audio == nil || s.provider == nil || s.synth == nil || s.sink == nil {
		return nil, errors.New("speech channel is missing a capture, provider, synthesizer or sink")
	}
	return nil, nil
}

// Render returns once the synthesized turn has finished playing, or fails
// when playback does not drain within RenderTimeout.
func (s *Streaming) Render(ctx context.Context, text string) error {
	if err := s.synth.Synthesize(ctx, text, s.sink); err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.RenderTimeout)
	defer cancel()
	if err := s.sink.Drain(drainCtx); err != nil {
		if ctx.Err() == nil && errors.Is(drainCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("audio playback did not finish within %s", s.cfg.RenderTimeout)
		}
		return fmt.Errorf("play audio: %w", err)
	}
	return nil
}

func (s *Streaming) Capture(ctx context.Context) (ports.CaptureSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, ErrChannelReleased
	}
	if s.active != nil && !s.active.ended() {
		return s.active, nil
	}

	audio, err := s.audio.Start(ctx, s.cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("start audio capture: %w", err)
	}
	stream, err := s.provider.StartStreaming(ctx, s.cfg.Stream)
	if err != nil {
		_ = audio.Stop()
		return nil, fmt.Errorf("start transcription: %w", err)
	}

	c := newStreamCapture(audio, stream, s.cfg.StreamCloseTimeout)
	c.run(frameSize(s.cfg.Audio, s.cfg.ChunkSize))
	s.active = c
	s.logger.Debug("speech capture started")
	return c, nil
}

func (s *Streaming) Release(context.Context) error {
	s.mu.Lock()
	s.released = true
	active := s.active
	s.active = nil
	s.mu.Unlock()

	if active == nil {
		return nil
	}
	return active.Stop()
}

type streamCapture struct {
	audio        ports.AudioSession
	stream       ports.StreamingSession
	closeTimeout time.Duration

	partials chan string
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	errMu sync.Mutex
	err   error
}

func newStreamCapture(audio ports.AudioSession, stream ports.StreamingSession, closeTimeout time.Duration) *streamCapture {
	return &streamCapture{
		audio:        audio,
		stream:       stream,
		closeTimeout: closeTimeout,
		partials:     make(chan string, 16),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (c *streamCapture) run(frame int) {
	pumpDone := make(chan struct{})
	go newAudioPump(c.audio, c.stream, frame, c.setErr).run(pumpDone)
	go func() {
		<-pumpDone
		_ = c.stream.CloseSend()
	}()

	go func() {
		defer close(c.done)
		defer close(c.partials)
		consumeTranscriptionEvents(c.stream, newTranscriptAggregator(), c.partials, c.stop)
		c.setErr(c.stream.Wait())
		// The provider may end the stream on its own.
		_ = c.audio.Stop()
	}()
}

func (c *streamCapture) Partials() <-chan string { return c.partials }

func (c *streamCapture) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *streamCapture) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stop)
		_ = c.audio.Stop()
		_ = c.stream.CloseSend()
		c.setErr(waitForStream(c.stream, c.closeTimeout))
		<-c.done
	})
	return c.Err()
}

func (c *streamCapture) ended() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *streamCapture) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}
