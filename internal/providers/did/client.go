// Package did streams talking avatars from D-ID's realtime talks API.
package did

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/webrtc/v3"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// AvatarImages maps avatar personas to their source portraits.
var AvatarImages = map[string]string{
	domain.AvatarHR:     "https://cdn.d-id.com/avatars/fT47o6iKk2_SGS2A8m53I.png",
	domain.AvatarMentor: "https://cdn.d-id.com/avatars/enhanced/o_jC4I2Aa0Cj8y0sBso_U.jpeg",
	domain.AvatarRobot:  "https://cdn.d-id.com/avatars/enhanced/Cubs2gK3cDmF6xK2pGv01.jpeg",
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// PollInterval and ReadyTimeout bound the wait for a new stream to start.
	PollInterval time.Duration
	ReadyTimeout time.Duration
}

// Client implements ports.AvatarStreamer.
type Client struct {
	HTTPClient *http.Client
	cfg        Config
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.d-id.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 30 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type script struct {
	Type  string `json:"type"`
	Input string `json:"input"`
}

type createStreamRequest struct {
	SourceURL string  `json:"source_url"`
	Script    *script `json:"script,omitempty"`
	Config    struct {
		ResultFormat string `json:"result_format"`
	} `json:"config"`
}

type streamResponse struct {
	ID         string                     `json:"id"`
	SessionID  string                     `json:"session_id"`
	Status     string                     `json:"status"`
	Offer      *webrtc.SessionDescription `json:"offer"`
	ICEServers []iceServer                `json:"ice_servers"`
}

// iceServer accepts urls as either a string or a list.
type iceServer struct {
	URLs       []string `json:"-"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

func (s *iceServer) UnmarshalJSON(data []byte) error {
	var raw struct {
		URLs       json.RawMessage `json:"urls"`
		Username   string          `json:"username"`
		Credential string          `json:"credential"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Username = raw.Username
	s.Credential = raw.Credential

	var one string
	if err := json.Unmarshal(raw.URLs, &one); err == nil {
		s.URLs = []string{one}
		return nil
	}
	return json.Unmarshal(raw.URLs, &s.URLs)
}

func (r streamResponse) ready() bool {
	return r.Offer != nil && len(r.ICEServers) > 0 && (r.Status == "" || r.Status == "started")
}

func (r streamResponse) handshake() ports.Handshake {
	servers := make([]webrtc.ICEServer, 0, len(r.ICEServers))
	for _, s := range r.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	return ports.Handshake{
		StreamID:   r.ID,
		SessionID:  r.SessionID,
		ICEServers: servers,
		Offer:      *r.Offer,
	}
}

// OpenRealtimeHandshake creates a stream for persona and waits until D-ID
// reports it started. Empty text opens the stream without a first script.
func (c *Client) OpenRealtimeHandshake(ctx context.Context, text, persona string) (ports.Handshake, error) {
	source, ok := AvatarImages[persona]
	if !ok {
		return ports.Handshake{}, fmt.Errorf("unknown avatar %q", persona)
	}

	body := createStreamRequest{SourceURL: source}
	body.Config.ResultFormat = "mp4"
	if text = strings.TrimSpace(text); text != "" {
		body.Script = &script{Type: "text", Input: text}
	}

	var created streamResponse
	if err := c.do(ctx, http.MethodPost, "/talks/streams", body, &created); err != nil {
		return ports.Handshake{}, fmt.Errorf("create avatar stream: %w", err)
	}
	if created.ID == "" {
		return ports.Handshake{}, errors.New("create avatar stream: response has no stream id")
	}

	stream, err := c.waitReady(ctx, created)
	if err != nil {
		// Best effort; the vendor expires abandoned streams.
		_ = c.CloseSession(context.WithoutCancel(ctx), ports.Handshake{StreamID: created.ID, SessionID: created.SessionID})
		return ports.Handshake{}, err
	}

	h := stream.handshake()
	if h.SessionID == "" {
		h.SessionID = created.SessionID
	}
	if _, err := h.Offer.Unmarshal(); err != nil {
		return ports.Handshake{}, fmt.Errorf("avatar offer is not valid SDP: %w", err)
	}
	return h, nil
}

func (c *Client) waitReady(ctx context.Context, created streamResponse) (streamResponse, error) {
	if created.ready() {
		return created, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	var current streamResponse
	poll := func() error {
		var next streamResponse
		if err := c.do(ctx, http.MethodGet, "/talks/streams/"+created.ID, nil, &next); err != nil {
			var status *statusError
			if errors.As(err, &status) && status.Code < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			return err
		}
		if next.Status == "error" || next.Status == "rejected" {
			return backoff.Permanent(fmt.Errorf("avatar stream %s", next.Status))
		}
		if !next.ready() {
			return fmt.Errorf("avatar stream is %q", next.Status)
		}
		if next.ID == "" {
			next.ID = created.ID
		}
		current = next
		return nil
	}

	if err := backoff.Retry(poll, backoff.WithContext(backoff.NewConstantBackOff(c.cfg.PollInterval), ctx)); err != nil {
		return streamResponse{}, fmt.Errorf("wait for avatar stream: %w", err)
	}
	return current, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, h ports.Handshake, answer webrtc.SessionDescription) error {
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("expected an SDP answer, got %q", answer.Type.String())
	}
	if _, err := answer.Unmarshal(); err != nil {
		return fmt.Errorf("answer is not valid SDP: %w", err)
	}
	body := map[string]any{"answer": answer, "session_id": h.SessionID}
	if err := c.do(ctx, http.MethodPost, "/talks/streams/"+h.StreamID+"/sdp", body, nil); err != nil {
		return fmt.Errorf("submit avatar answer: %w", err)
	}
	return nil
}

func (c *Client) Speak(ctx context.Context, h ports.Handshake, text string) error {
	body := map[string]any{
		"script":     script{Type: "text", Input: text},
		"session_id": h.SessionID,
	}
	if err := c.do(ctx, http.MethodPost, "/talks/streams/"+h.StreamID, body, nil); err != nil {
		return fmt.Errorf("avatar speak: %w", err)
	}
	return nil
}

func (c *Client) CloseSession(ctx context.Context, h ports.Handshake) error {
	body := map[string]any{"session_id": h.SessionID}
	if err := c.do(ctx, http.MethodDelete, "/talks/streams/"+h.StreamID, body, nil); err != nil {
		return fmt.Errorf("close avatar stream: %w", err)
	}
	return nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("d-id returned %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("DID_API_KEY is not configured")
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
