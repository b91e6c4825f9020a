package speech

import (
	"errors"
	"fmt"
	"io"
	"time"

	"careerlens/internal/ports"
)

// frameDuration is the audio span sent per provider message when no
// explicit chunk size is configured.
const frameDuration = 100 * time.Millisecond

// frameSize returns the bytes per provider message for linear16 audio.
// An explicit chunk size wins; otherwise the frame covers frameDuration at
// the capture rate. Frames never split a sample.
func frameSize(audio ports.AudioConfig, chunkSize int) int {
	width := 2 * max(audio.Channels, 1)
	size := chunkSize
	if size <= 0 {
		rate := audio.SampleRate
		if rate <= 0 {
			rate = 16000
		}
		size = rate * width * int(frameDuration/time.Millisecond) / 1000
	}
	if size < width {
		return width
	}
	return size - size%width
}

// audioPump coalesces short capture reads into whole frames and forwards
// them to the provider. A partial frame left when the capture ends is
// flushed as is. The frame buffer is reused, so dst must copy what it keeps.
type audioPump struct {
	src    io.Reader
	dst    ports.StreamingSession
	frame  []byte
	filled int
	report func(error)
}

func newAudioPump(src io.Reader, dst ports.StreamingSession, size int, report func(error)) *audioPump {
	return &audioPump{src: src, dst: dst, frame: make([]byte, size), report: report}
}

// run returns when the capture ends or the provider rejects audio. It
// closes done on return.
func (p *audioPump) run(done chan<- struct{}) {
	defer close(done)

	for {
		n, err := p.src.Read(p.frame[p.filled:])
		p.filled += n
		if p.filled == len(p.frame) && !p.flush() {
			return
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			p.flush()
			return
		}
		p.report(fmt.Errorf("audio capture: %w", err))
		return
	}
}

func (p *audioPump) flush() bool {
	if p.filled == 0 {
		return true
	}
	chunk := p.frame[:p.filled]
	p.filled = 0
	if err := p.dst.SendAudio(chunk); err != nil {
		p.report(fmt.Errorf("stream audio: %w", err))
		return false
	}
	return true
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
