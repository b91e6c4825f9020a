package audio

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"careerlens/internal/ports"
)

// PipeCapture is an AudioCapture fed by audio frames pushed from elsewhere,
// typically a client websocket. Frames pushed while no session is running
// are dropped.
type PipeCapture struct {
	mu      sync.Mutex
	current *pipeSession
	dropped atomic.Int64
}

func NewPipeCapture() *PipeCapture {
	return &PipeCapture{}
}

// Start replaces any running session.
func (c *PipeCapture) Start(ctx context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	s := newPipeSession()

	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Stop()
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.stopped:
		}
	}()
	return s, nil
}

// Write hands one frame to the running session.
func (c *PipeCapture) Write(frame []byte) {
	if len(frame) == 0 {
		return
	}
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil || !s.push(frame) {
		c.dropped.Add(1)
	}
}

func (c *PipeCapture) Dropped() int64 { return c.dropped.Load() }

type pipeSession struct {
	mu      sync.Mutex
	frames  chan []byte
	stopped chan struct{}
	closed  bool

	pending []byte
}

func newPipeSession() *pipeSession {
	return &pipeSession{frames: make(chan []byte, 64), stopped: make(chan struct{})}
}

func (s *pipeSession) push(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- append([]byte(nil), frame...):
		return true
	default:
		return false
	}
}

// Read must be called from a single goroutine.
func (s *pipeSession) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		frame, ok := <-s.frames
		if !ok {
			return 0, io.EOF
		}
		s.pending = frame
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *pipeSession) Close() error { return s.Stop() }

func (s *pipeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
		close(s.stopped)
	}
	return nil
}
