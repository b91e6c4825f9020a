package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// ErrChannelReleased fails renders still waiting when the channel goes away.
var ErrChannelReleased = errors.New("speech channel released")

// RemotePeer is the connected client that speaks AI turns and recognizes
// the user's speech itself.
type RemotePeer interface {
	Speak(id, text string) error
}

type RemoteConfig struct {
	// RenderTimeout bounds how long a render waits for the client's ack.
	RenderTimeout time.Duration
}

// Remote is the browser-side speech channel. Rendering and recognition
// happen on the client; Remote relays them and, when an avatar is chosen,
// drives the avatar stream.
type Remote struct {
	peer    RemotePeer
	avatars ports.AvatarStreamer
	acks    *Acks
	cfg     RemoteConfig
	logger  *slog.Logger

	mu        sync.Mutex
	handshake *ports.Handshake
	capture   *remoteCapture
	released  bool
}

func NewRemote(peer RemotePeer, avatars ports.AvatarStreamer, cfg RemoteConfig, logger *slog.Logger) *Remote {
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{peer: peer, avatars: avatars, acks: NewAcks(), cfg: cfg, logger: logger}
}

// Acquire opens the avatar stream when the session asks for one.
func (r *Remote) Acquire(ctx context.Context, cfg domain.SessionConfig) (*ports.Handshake, error) {
	if r.peer == nil {
		return nil, errors.New("no client attached")
	}
	if cfg.Avatar == "" {
		return nil, nil
	}
	if r.avatars == nil {
		return nil, errors.New("avatar streaming is not configured")
	}

	h, err := r.avatars.OpenRealtimeHandshake(ctx, "", cfg.Avatar)
	if err != nil {
		return nil, fmt.Errorf("open avatar stream: %w", err)
	}

	r.mu.Lock()
	r.handshake = &h
	r.mu.Unlock()
	return &h, nil
}

func (r *Remote) Render(ctx context.Context, text string) error {
	id, ack, forget := r.acks.Register()
	defer forget()

	if h := r.currentHandshake(); h != nil {
		if err := r.avatars.Speak(ctx, *h, text); err != nil {
			return fmt.Errorf("avatar speak: %w", err)
		}
	}
	if err := r.peer.Speak(id, text); err != nil {
		return fmt.Errorf("send turn to client: %w", err)
	}

	timer := time.NewTimer(r.cfg.RenderTimeout)
	defer timer.Stop()

	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return errors.New("client did not finish rendering in time")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Remote) Capture(context.Context) (ports.CaptureSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return nil, ErrChannelReleased
	}
	if r.capture != nil && !r.capture.ended() {
		return r.capture, nil
	}
	r.capture = newRemoteCapture()
	return r.capture, nil
}

// Partial forwards the client's cumulative recognition text. Text that
// arrives while nothing is capturing is dropped.
func (r *Remote) Partial(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	r.mu.Lock()
	c := r.capture
	r.mu.Unlock()
	if c != nil {
		c.offer(text)
	}
}

// CaptureEnded reports that the client's recognizer stopped. A non-empty
// reason is surfaced as the capture error.
func (r *Remote) CaptureEnded(reason string) {
	r.mu.Lock()
	c := r.capture
	r.mu.Unlock()
	if c == nil {
		return
	}
	if reason != "" {
		c.end(errors.New(reason))
		return
	}
	c.end(nil)
}

func (r *Remote) RenderComplete(id string) bool {
	return r.acks.Resolve(id, nil)
}

func (r *Remote) RenderFailed(id, reason string) bool {
	if reason == "" {
		reason = "client failed to render turn"
	}
	return r.acks.Resolve(id, errors.New(reason))
}

// Answer completes the avatar WebRTC negotiation.
func (r *Remote) Answer(ctx context.Context, answer webrtc.SessionDescription) error {
	h := r.currentHandshake()
	if h == nil {
		return errors.New("no avatar stream is open")
	}
	return r.avatars.SubmitAnswer(ctx, *h, answer)
}

func (r *Remote) Release(ctx context.Context) error {
	r.mu.Lock()
	r.released = true
	c := r.capture
	r.capture = nil
	h := r.handshake
	r.handshake = nil
	r.mu.Unlock()

	if c != nil {
		_ = c.Stop()
	}
	r.acks.FailAll(ErrChannelReleased)

	if h == nil {
		return nil
	}
	if err := r.avatars.CloseSession(ctx, *h); err != nil {
		return fmt.Errorf("close avatar stream: %w", err)
	}
	return nil
}

func (r *Remote) currentHandshake() *ports.Handshake {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handshake
}

type remoteCapture struct {
	mu       sync.Mutex
	partials chan string
	closed   bool
	err      error
}

func newRemoteCapture() *remoteCapture {
	return &remoteCapture{partials: make(chan string, 32)}
}

func (c *remoteCapture) Partials() <-chan string { return c.partials }

func (c *remoteCapture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *remoteCapture) Stop() error {
	c.end(nil)
	return nil
}

func (c *remoteCapture) offer(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.partials <- text:
	default:
	}
}

func (c *remoteCapture) end(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.partials)
}

func (c *remoteCapture) ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
