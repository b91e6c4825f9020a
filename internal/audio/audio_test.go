package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"careerlens/internal/ports"
)

func TestFFmpegCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFmpegCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}
}

func TestFFmpegCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before audio started") || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIgnoreExitError(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-c", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := ignoreExit(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
	boom := errors.New("boom")
	if got := ignoreExit(boom); got != boom {
		t.Fatalf("expected other errors to pass through, got %v", got)
	}
}

func TestFFplaySinkWritesAndDrains(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "played.raw")
	script := writeScript(t, "play.sh", "#!/usr/bin/env bash\ncat > "+out+"\n")
	sink := NewFFplaySink(script, 0, 0)

	if err := sink.Drain(context.Background()); err != nil {
		t.Fatalf("drain without audio should be a no-op, got %v", err)
	}
	if err := sink.WriteAudio([]byte("abc")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.WriteAudio([]byte("def")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := sink.Drain(context.Background()); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	played, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(played) != "abcdef" {
		t.Fatalf("unexpected played audio: %q", played)
	}
}

func TestFFplaySinkDrainHonorsContext(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "hang.sh", "#!/usr/bin/env bash\ncat > /dev/null\nexec sleep 5\n")
	sink := NewFFplaySink(script, 16000, 1)
	sink.grace = 50 * time.Millisecond

	if err := sink.WriteAudio([]byte("abc")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sink.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close after drain should be a no-op, got %v", err)
	}
}

func TestPipeCaptureDeliversFrames(t *testing.T) {
	t.Parallel()

	capture := NewPipeCapture()
	capture.Write([]byte("early"))
	if capture.Dropped() != 1 {
		t.Fatalf("expected frame without a session to be dropped")
	}

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	capture.Write([]byte("abcd"))
	capture.Write([]byte("ef"))

	buf := make([]byte, 3)
	var got []byte
	for len(got) < 6 {
		n, err := session.Read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "abcdef" {
		t.Fatalf("unexpected audio: %q", got)
	}

	_ = session.Stop()
	if _, err := session.Read(buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after stop, got %v", err)
	}
	capture.Write([]byte("late"))
	if capture.Dropped() != 2 {
		t.Fatalf("expected frame after stop to be dropped, got %d", capture.Dropped())
	}
}

func TestPipeCaptureStartReplacesSessionAndStopsOnCancel(t *testing.T) {
	t.Parallel()

	capture := NewPipeCapture()
	first, _ := capture.Start(context.Background(), ports.AudioConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	second, _ := capture.Start(ctx, ports.AudioConfig{})

	if _, err := first.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected replaced session to end, got %v", err)
	}

	cancel()
	done := make(chan error, 1)
	go func() {
		_, err := second.Read(make([]byte, 1))
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected EOF after cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("session did not stop on cancel")
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
