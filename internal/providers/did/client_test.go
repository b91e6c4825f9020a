package did

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

type recordedCall struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakeDID struct {
	mu       sync.Mutex
	calls    []recordedCall
	polls    int
	readyAt  int
	pollCode int
}

func (f *fakeDID) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &body))
		}

		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body})
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/talks/streams":
			_, _ = w.Write([]byte(`{"id":"strm_1","session_id":"sess_1","status":"created"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/talks/streams/strm_1":
			f.mu.Lock()
			f.polls++
			polls := f.polls
			f.mu.Unlock()
			if f.pollCode != 0 {
				w.WriteHeader(f.pollCode)
				_, _ = w.Write([]byte(`{"description":"nope"}`))
				return
			}
			if polls < f.readyAt {
				_, _ = w.Write([]byte(`{"id":"strm_1","status":"created"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "strm_1",
				"status": "started",
				"offer":  map[string]string{"type": "offer", "sdp": testSDP},
				"ice_servers": []map[string]any{
					{"urls": "stun:stun.example.com:3478"},
					{"urls": []string{"turn:turn.example.com:443"}, "username": "u", "credential": "p"},
				},
			})
		default:
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}
	})
}

func (f *fakeDID) snapshot() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeDID) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func newTestClient(t *testing.T, fake *fakeDID) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "key", PollInterval: 5 * time.Millisecond, ReadyTimeout: time.Second})
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{})
	assert.Equal(t, "https://api.d-id.com", c.cfg.BaseURL)
	assert.Equal(t, time.Second, c.cfg.PollInterval)
	assert.Equal(t, 30*time.Second, c.cfg.ReadyTimeout)
}

func TestOpenRealtimeHandshakePollsUntilStarted(t *testing.T) {
	t.Parallel()

	fake := &fakeDID{readyAt: 3}
	c := newTestClient(t, fake)

	h, err := c.OpenRealtimeHandshake(context.Background(), "", domain.AvatarMentor)
	require.NoError(t, err)

	assert.Equal(t, "strm_1", h.StreamID)
	assert.Equal(t, "sess_1", h.SessionID)
	assert.Equal(t, webrtc.SDPTypeOffer, h.Offer.Type)
	require.Len(t, h.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, h.ICEServers[0].URLs)
	assert.Equal(t, "u", h.ICEServers[1].Username)

	calls := fake.snapshot()
	create := calls[0]
	assert.Equal(t, "Basic key", create.Auth)
	assert.Equal(t, AvatarImages[domain.AvatarMentor], create.Body["source_url"])
	assert.NotContains(t, create.Body, "script")
	assert.Equal(t, 3, fake.pollCount())
}

func TestOpenRealtimeHandshakeSendsOpeningScript(t *testing.T) {
	t.Parallel()

	fake := &fakeDID{}
	c := newTestClient(t, fake)

	_, err := c.OpenRealtimeHandshake(context.Background(), "Welcome!", domain.AvatarHR)
	require.NoError(t, err)

	script, ok := fake.snapshot()[0].Body["script"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "text", script["type"])
	assert.Equal(t, "Welcome!", script["input"])
}

func TestOpenRealtimeHandshakeFailures(t *testing.T) {
	t.Parallel()

	_, err := newTestClient(t, &fakeDID{}).OpenRealtimeHandshake(context.Background(), "", "Pirate")
	assert.ErrorContains(t, err, "unknown avatar")

	fake := &fakeDID{pollCode: http.StatusForbidden}
	_, err = newTestClient(t, fake).OpenRealtimeHandshake(context.Background(), "", domain.AvatarRobot)
	require.Error(t, err)
	assert.Equal(t, 1, fake.pollCount(), "client errors should not be retried")
	calls := fake.snapshot()
	assert.Equal(t, http.MethodDelete, calls[len(calls)-1].Method, "abandoned stream should be closed")

	slow := &fakeDID{readyAt: 1000}
	c := newTestClient(t, slow)
	c.cfg.ReadyTimeout = 30 * time.Millisecond
	_, err = c.OpenRealtimeHandshake(context.Background(), "", domain.AvatarRobot)
	assert.Error(t, err)

	_, err = NewClient(Config{}).OpenRealtimeHandshake(context.Background(), "", domain.AvatarHR)
	assert.ErrorContains(t, err, "DID_API_KEY")
}

func TestStreamOperations(t *testing.T) {
	t.Parallel()

	fake := &fakeDID{}
	c := newTestClient(t, fake)
	h := ports.Handshake{StreamID: "strm_1", SessionID: "sess_1"}

	require.NoError(t, c.SubmitAnswer(context.Background(), h, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}))
	require.NoError(t, c.Speak(context.Background(), h, "Next question."))
	require.NoError(t, c.CloseSession(context.Background(), h))

	calls := fake.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, "/talks/streams/strm_1/sdp", calls[0].Path)
	assert.Equal(t, "sess_1", calls[0].Body["session_id"])
	assert.Equal(t, http.MethodPost, calls[1].Method)
	assert.Equal(t, "/talks/streams/strm_1", calls[1].Path)
	assert.Equal(t, http.MethodDelete, calls[2].Method)

	err := c.SubmitAnswer(context.Background(), h, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP})
	assert.Error(t, err)
	err = c.SubmitAnswer(context.Background(), h, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "garbage"})
	assert.Error(t, err)
}
