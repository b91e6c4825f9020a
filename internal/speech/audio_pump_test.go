package speech

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

func TestFrameSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		audio     ports.AudioConfig
		chunkSize int
		want      int
	}{
		{name: "100ms mono 16k", audio: ports.AudioConfig{SampleRate: 16000, Channels: 1}, want: 3200},
		{name: "100ms stereo 48k", audio: ports.AudioConfig{SampleRate: 48000, Channels: 2}, want: 19200},
		{name: "unset rate", audio: ports.AudioConfig{}, want: 3200},
		{name: "explicit size", audio: ports.AudioConfig{SampleRate: 16000, Channels: 1}, chunkSize: 4096, want: 4096},
		{name: "explicit size keeps samples whole", audio: ports.AudioConfig{SampleRate: 16000, Channels: 2}, chunkSize: 1001, want: 1000},
	}
	for _, tc := range cases {
		if got := frameSize(tc.audio, tc.chunkSize); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestAudioPumpCoalescesShortReads(t *testing.T) {
	t.Parallel()

	stream := newScriptedStream()
	done := make(chan struct{})
	var reported []error

	// 700 bytes in 7 reads of 100 become frames of 256, 256 and a 188 byte tail.
	src := &chunkedReader{r: bytes.NewReader(bytes.Repeat([]byte("a"), 700)), n: 100}
	go newAudioPump(src, stream, 256, func(err error) { reported = append(reported, err) }).run(done)
	<-done

	if len(reported) != 0 {
		t.Fatalf("unexpected errors: %v", reported)
	}
	if got := stream.sentBytes(); got != 700 {
		t.Fatalf("expected 700 bytes sent, got %d", got)
	}
	if got := stream.chunkSizes(); len(got) != 3 || got[0] != 256 || got[1] != 256 || got[2] != 188 {
		t.Fatalf("expected whole frames then the tail, got %v", got)
	}
}

func TestAudioPumpReportsSendError(t *testing.T) {
	t.Parallel()

	stream := newScriptedStream()
	stream.sendErr = errors.New("send failed")
	done := make(chan struct{})
	var reported error

	go newAudioPump(bytes.NewReader([]byte("abc")), stream, 256, func(err error) { reported = err }).run(done)
	<-done

	if reported == nil || !errors.Is(reported, stream.sendErr) {
		t.Fatalf("expected send error, got %v", reported)
	}
}

func TestAudioPumpReportsReadError(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	var reported error

	go newAudioPump(&errorReader{err: errors.New("read failed")}, newScriptedStream(), 256, func(err error) { reported = err }).run(done)
	<-done

	if reported == nil {
		t.Fatalf("expected audio capture error")
	}
}

func TestWaitForStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := &blockingWaitStream{done: make(chan struct{}), waitErr: errors.New("closed")}
	err := waitForStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected close to be called on timeout")
	}
}

type errorReader struct {
	err error
}

func (r *errorReader) Read(_ []byte) (int, error) { return 0, r.err }

// chunkedReader returns at most n bytes per Read, like a live capture.
type chunkedReader struct {
	r io.Reader
	n int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(p) > r.n {
		p = p[:r.n]
	}
	return r.r.Read(p)
}

// scriptedStream replays events and records sent audio.
type scriptedStream struct {
	mu      sync.Mutex
	sent    int
	chunks  []int
	sendErr error
	events  chan domain.TranscriptEvent
	closed  chan struct{}
	once    sync.Once
	waitErr error
}

func newScriptedStream(events ...domain.TranscriptEvent) *scriptedStream {
	s := &scriptedStream{events: make(chan domain.TranscriptEvent, len(events)+8), closed: make(chan struct{})}
	for _, e := range events {
		s.events <- e
	}
	if len(events) > 0 {
		s.finish()
	}
	return s
}

func (s *scriptedStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent += len(chunk)
	s.chunks = append(s.chunks, len(chunk))
	return nil
}

func (s *scriptedStream) sentBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *scriptedStream) chunkSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.chunks...)
}

func (s *scriptedStream) push(e domain.TranscriptEvent) { s.events <- e }

func (s *scriptedStream) finish() {
	s.once.Do(func() {
		close(s.events)
		close(s.closed)
	})
}

func (s *scriptedStream) CloseSend() error                      { s.finish(); return nil }
func (s *scriptedStream) Events() <-chan domain.TranscriptEvent { return s.events }
func (s *scriptedStream) Wait() error                           { <-s.closed; return s.waitErr }
func (s *scriptedStream) Close() error                          { s.finish(); return s.waitErr }

type blockingWaitStream struct {
	done       chan struct{}
	waitErr    error
	closeCalls int
}

func (s *blockingWaitStream) SendAudio(_ []byte) error { return nil }
func (s *blockingWaitStream) CloseSend() error         { return nil }
func (s *blockingWaitStream) Events() <-chan domain.TranscriptEvent {
	ch := make(chan domain.TranscriptEvent)
	close(ch)
	return ch
}
func (s *blockingWaitStream) Wait() error {
	<-s.done
	return s.waitErr
}
func (s *blockingWaitStream) Close() error {
	s.closeCalls++
	close(s.done)
	return nil
}

var _ io.Reader = (*errorReader)(nil)
