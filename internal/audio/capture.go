package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"careerlens/internal/ports"
)

// FFmpegCapture streams microphone PCM audio using ffmpeg.
type FFmpegCapture struct {
	command string
	settle  time.Duration
	grace   time.Duration
}

func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{command: command, settle: 250 * time.Millisecond, grace: 1200 * time.Millisecond}
}

func (c *FFmpegCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	cmd := exec.CommandContext(ctx, c.command,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}

	proc, err := startProcess(cmd, c.settle)
	if err != nil {
		return nil, err
	}
	return &captureSession{stdout: stdout, proc: proc, grace: c.grace}, nil
}

type captureSession struct {
	stdout io.ReadCloser
	proc   *process
	grace  time.Duration

	once sync.Once
	err  error
}

func (s *captureSession) Read(p []byte) (int, error) { return s.stdout.Read(p) }
func (s *captureSession) Close() error               { return s.Stop() }

func (s *captureSession) Stop() error {
	s.once.Do(func() {
		s.err = s.proc.stop(s.grace)
		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.err == nil {
			s.err = err
		}
	})
	return s.err
}
