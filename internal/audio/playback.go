package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// FFplaySink plays linear16 PCM through ffplay. A player is started on the
// first chunk of a turn and finishes when the turn is drained.
type FFplaySink struct {
	command    string
	sampleRate int
	channels   int
	grace      time.Duration

	mu    sync.Mutex
	proc  *process
	stdin io.WriteCloser
}

func NewFFplaySink(command string, sampleRate, channels int) *FFplaySink {
	if command == "" {
		command = "ffplay"
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &FFplaySink{command: command, sampleRate: sampleRate, channels: channels, grace: time.Second}
}

func (s *FFplaySink) WriteAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		if err := s.startLocked(); err != nil {
			return err
		}
	}
	if _, err := s.stdin.Write(chunk); err != nil {
		return fmt.Errorf("write to player: %w", err)
	}
	return nil
}

func (s *FFplaySink) startLocked() error {
	cmd := exec.Command(s.command,
		"-nodisp",
		"-autoexit",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.sampleRate),
		"-ac", strconv.Itoa(s.channels),
		"-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player stdin pipe: %w", err)
	}
	proc, err := startProcess(cmd, 0)
	if err != nil {
		return err
	}
	s.proc = proc
	s.stdin = stdin
	return nil
}

// Drain closes the current player's input and waits for playback to end.
func (s *FFplaySink) Drain(ctx context.Context) error {
	s.mu.Lock()
	proc, stdin := s.proc, s.stdin
	s.proc, s.stdin = nil, nil
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	if err := stdin.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		_ = proc.stop(s.grace)
		return fmt.Errorf("close player input: %w", err)
	}

	exited, err := proc.wait(ctx.Done())
	if !exited {
		_ = proc.stop(s.grace)
		return ctx.Err()
	}
	return err
}

// Close stops any player still running.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	proc, stdin := s.proc, s.stdin
	s.proc, s.stdin = nil, nil
	s.mu.Unlock()

	if proc == nil {
		return nil
	}
	_ = stdin.Close()
	return proc.stop(s.grace)
}
