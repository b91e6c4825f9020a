package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

func TestNewListenerDefaults(t *testing.T) {
	t.Parallel()

	l := NewListener(Config{})
	if l.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", l.cfg.APIBaseURL)
	}
	if l.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", l.cfg.Model)
	}
}

func TestListenerStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	l := NewListener(Config{APIKey: " "})
	if _, err := l.StartStreaming(context.Background(), ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"wss://api.deepgram.com/v1/listen", "encoding=linear16", "sample_rate=16000", "channels=1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in url: %s", want, got)
		}
	}
	if strings.Contains(got, "endpointing") {
		t.Fatalf("did not expect endpointing without a value: %s", got)
	}
}

func TestBuildListenURLWithLanguageEndpointingAndSmartFormat(t *testing.T) {
	t.Parallel()

	got, err := buildListenURL(
		Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", Language: "en-US", SmartFormat: true},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, InterimResults: true, Endpointing: 300 * time.Millisecond},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"ws://localhost:8080/v1/listen", "language=en-US", "smart_format=true", "interim_results=true", "endpointing=300"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in url: %s", want, got)
		}
	}
}

func TestBuildListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := buildListenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	r1 := listenResponse{}
	r1.Channel.Alternatives = []alternative{{Transcript: " channel "}}
	if got := extractTranscript(r1); got != "channel" {
		t.Fatalf("unexpected transcript from channel: %q", got)
	}

	r2 := listenResponse{}
	r2.Results.Channels = append(r2.Results.Channels, struct {
		Alternatives []alternative `json:"alternatives"`
	}{Alternatives: []alternative{{Transcript: "results"}}})
	if got := extractTranscript(r2); got != "results" {
		t.Fatalf("unexpected transcript from results: %q", got)
	}

	if got := extractTranscript(listenResponse{}); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestListenSessionSendAudioClosed(t *testing.T) {
	t.Parallel()

	s := &listenSession{sendClosed: true}
	if err := s.SendAudio([]byte("x")); err == nil {
		t.Fatalf("expected closed error")
	}
}

func TestListenSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &listenSession{audio: make(chan []byte, 1)}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestListenSessionSetErrIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &listenSession{}
	s.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.setErr(errors.New("first"))
	s.setErr(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

// fakeDeepgram upgrades one listen connection, checks auth, and answers
// every binary frame with the next scripted response.
func fakeDeepgram(t *testing.T, responses []string, got chan<- string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		next := 0
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage {
				got <- string(payload)
				if strings.Contains(string(payload), "CloseStream") {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				continue
			}
			if next < len(responses) {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(responses[next]))
				next++
			}
		}
	}))
}

func TestListenerStreamsTranscripts(t *testing.T) {
	t.Parallel()

	control := make(chan string, 4)
	srv := fakeDeepgram(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hello there"}]}}`,
	}, control)
	defer srv.Close()

	l := NewListener(Config{APIKey: "key", APIBaseURL: srv.URL})
	session, err := l.StartStreaming(context.Background(), ports.StreamingConfig{InterimResults: true})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := session.SendAudio([]byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("send audio failed: %v", err)
		}
	}

	var events []domain.TranscriptEvent
	for len(events) < 2 {
		select {
		case event := <-session.Events():
			events = append(events, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for transcripts, got %+v", events)
		}
	}
	if events[0].Kind != domain.TranscriptKindPartial || events[0].Text != "hello" {
		t.Fatalf("unexpected partial event: %+v", events[0])
	}
	if events[1].Kind != domain.TranscriptKindFinal || !events[1].IsSpeechFinal {
		t.Fatalf("unexpected final event: %+v", events[1])
	}

	if err := session.CloseSend(); err != nil {
		t.Fatalf("close send failed: %v", err)
	}
	select {
	case msg := <-control:
		if !strings.Contains(msg, "CloseStream") {
			t.Fatalf("expected CloseStream, got %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("CloseStream was not sent")
	}
	if err := session.Wait(); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestListenerSurfacesProviderError(t *testing.T) {
	t.Parallel()

	srv := fakeDeepgram(t, []string{`{"type":"Error","message":"bad audio"}`}, make(chan string, 4))
	defer srv.Close()

	l := NewListener(Config{APIKey: "key", APIBaseURL: srv.URL})
	session, err := l.StartStreaming(context.Background(), ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}
	if err := session.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("send audio failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case err := <-done:
		if err == nil || err.Error() != "bad audio" {
			t.Fatalf("expected provider error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not stop after provider error")
	}
}

func TestListenerRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	srv := fakeDeepgram(t, nil, make(chan string, 1))
	defer srv.Close()

	l := NewListener(Config{APIKey: "wrong", APIBaseURL: srv.URL})
	if _, err := l.StartStreaming(context.Background(), ports.StreamingConfig{}); err == nil {
		t.Fatalf("expected dial error")
	}
}
