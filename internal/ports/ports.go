package ports

import (
	"context"
	"io"
	"time"

	"github.com/pion/webrtc/v3"

	"careerlens/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioSink plays synthesized PCM audio.
type AudioSink interface {
	WriteAudio(chunk []byte) error
	// Drain blocks until queued audio has been played.
	Drain(ctx context.Context) error
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Endpointing    time.Duration
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Synthesizer turns text into PCM audio written to sink. It returns once
// the provider has finished producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, sink AudioSink) error
}

// Message is one turn of conversation history handed to a text generator.
type Message struct {
	Role string
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// OutputSchema requests schema-constrained JSON output.
type OutputSchema struct {
	Name   string
	Schema map[string]any
}

// GenerationRequest is one call to the external text-generation capability.
type GenerationRequest struct {
	SystemPersona string
	History       []Message
	Instruction   string
	Schema        *OutputSchema
	Temperature   float64
}

// TextGenerator maps a structured prompt to text, JSON when a schema is set.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Handshake carries what a browser needs to attach to a realtime avatar stream.
type Handshake struct {
	StreamID   string                    `json:"stream_id"`
	SessionID  string                    `json:"session_id"`
	ICEServers []webrtc.ICEServer        `json:"ice_servers"`
	Offer      webrtc.SessionDescription `json:"offer"`
}

// AvatarStreamer is the realtime avatar video vendor.
type AvatarStreamer interface {
	OpenRealtimeHandshake(ctx context.Context, text string, persona string) (Handshake, error)
	SubmitAnswer(ctx context.Context, h Handshake, answer webrtc.SessionDescription) error
	Speak(ctx context.Context, h Handshake, text string) error
	CloseSession(ctx context.Context, h Handshake) error
}

// CaptureSession is a lazy sequence of cumulative partial transcriptions of
// the utterance in progress. Partials is closed when capture ends.
type CaptureSession interface {
	Partials() <-chan string
	Err() error
	Stop() error
}

// SpeechChannel renders AI turns and captures user speech for one session.
// Capture returns the active session when one is already running.
type SpeechChannel interface {
	Acquire(ctx context.Context, cfg domain.SessionConfig) (*Handshake, error)
	Render(ctx context.Context, text string) error
	Capture(ctx context.Context) (CaptureSession, error)
	Release(ctx context.Context) error
}

// UtteranceNormalizer rewrites captured speech deterministically.
type UtteranceNormalizer interface {
	Apply(text string) (string, error)
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Get(ctx context.Context, uid string) (domain.UserProfile, bool, error)
	Upsert(ctx context.Context, uid string, fields map[string]any, now time.Time) error
}

// SessionArchive stores finished sessions.
type SessionArchive interface {
	Save(ctx context.Context, record domain.SessionRecord) error
}

// EventSink emits session state and events to the client.
type EventSink interface {
	SessionStateChanged(phase domain.Phase, reason domain.SessionStateReason)
	PartialTranscript(text string)
	TurnCommitted(index int, item domain.TranscriptItem, feedback *domain.FeedbackReport)
	HandshakeReady(h Handshake)
	SessionError(code domain.ErrorCode, detail string)
}
