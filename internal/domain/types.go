package domain

import "time"

// Phase models the conversational session lifecycle.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseStarting         Phase = "starting"
	PhaseActive           Phase = "active"
	PhaseAwaitingResponse Phase = "awaiting_response"
	PhaseSpeaking         Phase = "speaking"
	PhaseEnding           Phase = "ending"
	PhaseFinished         Phase = "finished"
)

// SessionStateReason provides a structured reason for phase transitions.
type SessionStateReason string

const (
	SessionReasonCreated              SessionStateReason = "session_created"
	SessionReasonAcquiring            SessionStateReason = "acquiring_resources"
	SessionReasonResourcesUnavailable SessionStateReason = "resources_unavailable"
	SessionReasonGenerating           SessionStateReason = "generating_turn"
	SessionReasonSpeaking             SessionStateReason = "speaking_turn"
	SessionReasonListening            SessionStateReason = "listening"
	SessionReasonGenerationFailed     SessionStateReason = "generation_failed"
	SessionReasonRenderFailed         SessionStateReason = "render_failed"
	SessionReasonWrappingUp           SessionStateReason = "wrapping_up"
	SessionReasonCompleted            SessionStateReason = "session_completed"
	SessionReasonUserEnded            SessionStateReason = "user_ended"
	SessionReasonExpired              SessionStateReason = "session_expired"
	SessionReasonInvalidTurn          SessionStateReason = "invalid_turn"
	SessionReasonFinished             SessionStateReason = "session_finished"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeConfig      ErrorCode = "config"
	ErrorCodeResources   ErrorCode = "resource_acquisition"
	ErrorCodeGeneration  ErrorCode = "generation"
	ErrorCodeRender      ErrorCode = "render"
	ErrorCodeCapture     ErrorCode = "capture"
	ErrorCodeInvalidTurn ErrorCode = "invalid_turn"
	ErrorCodeRules       ErrorCode = "rules"
	ErrorCodeArchive     ErrorCode = "archive"
	ErrorCodeRelease     ErrorCode = "release"
)

// Speaker tags who produced a transcript item.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

// TranscriptItem is one committed turn. Immutable once appended.
type TranscriptItem struct {
	Speaker   Speaker   `json:"speaker" bson:"speaker"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental speech recognition output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}

// QuestionCategory is the archetype of the next AI turn.
type QuestionCategory string

const CategoryOpeningClosing QuestionCategory = "Opening/Closing"

// TurnDirective is produced by the turn policy for each AI turn and consumed
// immediately by the response generator.
type TurnDirective struct {
	QuestionCategory QuestionCategory  `json:"questionCategory"`
	ShouldWrapUp     bool              `json:"shouldWrapUp"`
	FinalTurn        bool              `json:"finalTurn"`
	Opening          bool              `json:"opening"`
	StyleHints       map[string]string `json:"styleHints,omitempty"`
}

// GrammarFeedback scores sentence-level accuracy.
type GrammarFeedback struct {
	Score       int      `json:"score" validate:"min=0,max=100"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

type VocabularyFeedback struct {
	NewWords    []string `json:"newWords"`
	Suggestions []string `json:"suggestions"`
}

type PronunciationFeedback struct {
	Score int      `json:"score" validate:"min=0,max=100"`
	Tips  []string `json:"tips"`
}

type FluencyFeedback struct {
	Score        int      `json:"score" validate:"min=0,max=100"`
	Observations []string `json:"observations"`
}

// FeedbackReport is the English practice analysis attached to one AI turn.
type FeedbackReport struct {
	Grammar       GrammarFeedback       `json:"grammar"`
	Vocabulary    VocabularyFeedback    `json:"vocabulary"`
	Pronunciation PronunciationFeedback `json:"pronunciation"`
	Fluency       FluencyFeedback       `json:"fluency"`
	Encouragement string                `json:"encouragement"`
}

// GenerationResult is the validated output of one generated turn.
type GenerationResult struct {
	ResponseText     string           `json:"responseText"`
	QuestionCategory QuestionCategory `json:"questionCategory,omitempty"`
	PrivateAnalysis  string           `json:"-"`
	Feedback         *FeedbackReport  `json:"feedback,omitempty"`
	IsEndOfSession   bool             `json:"isEndOfSession"`
}

// Status summarizes one session for callers outside the session loop.
type Status struct {
	ID            string    `json:"id"`
	Phase         Phase     `json:"phase"`
	Active        bool      `json:"active"`
	Mode          Mode      `json:"mode"`
	ExchangeCount int       `json:"exchangeCount"`
	MaxExchanges  int       `json:"maxExchanges"`
	StartedAt     time.Time `json:"startedAt,omitzero"`
	Message       string    `json:"message,omitempty"`
}

// SessionRecord is the archived shape of a finished session.
type SessionRecord struct {
	ID            string                 `json:"id"`
	Config        SessionConfig          `json:"config"`
	Transcript    []TranscriptItem       `json:"transcript"`
	Feedback      map[int]FeedbackReport `json:"feedback,omitempty"`
	ExchangeCount int                    `json:"exchangeCount"`
	StartedAt     time.Time              `json:"startedAt"`
	EndedAt       time.Time              `json:"endedAt"`
	EndReason     SessionStateReason     `json:"endReason"`
}
