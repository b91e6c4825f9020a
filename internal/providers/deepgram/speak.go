package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"

	"careerlens/internal/ports"
)

const (
	defaultSpeakModel      = "aura-2-thalia-en"
	defaultSpeakSampleRate = 24000
)

// Speaker implements ports.Synthesizer with Deepgram Aura over the SDK's
// websocket client. Audio is raw linear16 PCM.
type Speaker struct {
	apiKey     string
	model      string
	sampleRate int
	logger     *slog.Logger

	pollEvery time.Duration
	// deadline bounds the wait for Flushed when the server never sends it.
	deadline time.Duration
}

func NewSpeaker(cfg Config, logger *slog.Logger) *Speaker {
	if cfg.SpeakModel == "" {
		cfg.SpeakModel = defaultSpeakModel
	}
	if cfg.SpeakSampleRate <= 0 {
		cfg.SpeakSampleRate = defaultSpeakSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		apiKey:     cfg.APIKey,
		model:      cfg.SpeakModel,
		sampleRate: cfg.SpeakSampleRate,
		logger:     logger,
		pollEvery:  50 * time.Millisecond,
		deadline:   30 * time.Second,
	}
}

// SampleRate is the PCM rate written to sinks.
func (s *Speaker) SampleRate() int { return s.sampleRate }

func (s *Speaker) Synthesize(ctx context.Context, text string, sink ports.AudioSink) error {
	if strings.TrimSpace(s.apiKey) == "" {
		return errors.New("DEEPGRAM_API_KEY is not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	cb := newSpeakCallback(sink)
	dg, err := speak.NewWSUsingCallback(ctx, s.apiKey, &clientinterfaces.ClientOptions{}, &clientinterfaces.WSSpeakOptions{
		Model:      s.model,
		Encoding:   "linear16",
		SampleRate: s.sampleRate,
	}, cb)
	if err != nil {
		return fmt.Errorf("create deepgram speak client: %w", err)
	}

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(dg.Stop) }
	defer stop()

	if ok := dg.Connect(); !ok {
		return errors.New("connect to deepgram speak failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		return fmt.Errorf("deepgram flush: %w", err)
	}

	return s.waitFlushed(ctx, cb)
}

// waitFlushed returns once Deepgram confirms every queued audio frame has
// been sent. Pauses in the audio stream do not end the wait.
func (s *Speaker) waitFlushed(ctx context.Context, cb *speakCallback) error {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()
	deadline := time.NewTimer(s.deadline)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cb.flushed:
			return cb.failure()
		case <-deadline.C:
			if cb.sawAudio() {
				s.logger.Warn("deepgram never confirmed flush; treating synthesis as complete", "after", s.deadline)
				return cb.failure()
			}
			return errors.New("deepgram produced no audio")
		case <-ticker.C:
			if err := cb.failure(); err != nil {
				return err
			}
		}
	}
}

type speakCallback struct {
	sink ports.AudioSink

	gotAudio  atomic.Bool
	flushed   chan struct{}
	flushOnce sync.Once

	mu  sync.Mutex
	err error
}

func newSpeakCallback(sink ports.AudioSink) *speakCallback {
	return &speakCallback{sink: sink, flushed: make(chan struct{})}
}

func (c *speakCallback) sawAudio() bool { return c.gotAudio.Load() }

func (c *speakCallback) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *speakCallback) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (c *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (c *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (c *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (c *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (c *speakCallback) UnhandledEvent([]byte) error                    { return nil }

// Flush is called after the last audio frame of the flushed text.
func (c *speakCallback) Flush(*msginterfaces.FlushedResponse) error {
	c.flushOnce.Do(func() { close(c.flushed) })
	return nil
}

func (c *speakCallback) Error(resp *msginterfaces.ErrorResponse) error {
	if resp == nil {
		c.fail(errors.New("deepgram speak error"))
		return nil
	}
	c.fail(fmt.Errorf("deepgram speak error: %+v", *resp))
	return nil
}

func (c *speakCallback) Binary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	c.gotAudio.Store(true)
	chunk := append([]byte(nil), data...)
	if err := c.sink.WriteAudio(chunk); err != nil {
		c.fail(fmt.Errorf("play audio: %w", err))
	}
	return nil
}
