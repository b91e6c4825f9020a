package domain

import (
	"fmt"
	"strings"
)

// Mode selects the session variant.
type Mode string

const (
	ModeTechnical       Mode = "technical"
	ModeHR              Mode = "hr"
	ModeMixed           Mode = "mixed"
	ModeEnglishPractice Mode = "english-practice"
)

// Avatar personas for realtime video sessions.
const (
	AvatarHR     = "HR"
	AvatarMentor = "Mentor"
	AvatarRobot  = "Robot"
)

// DefaultMaxExchanges bounds a session when the caller does not.
const DefaultMaxExchanges = 6

var practiceTopics = map[string]bool{
	"daily":     true,
	"interview": true,
	"travel":    true,
	"technical": true,
	"idioms":    true,
	"debate":    true,
}

var (
	proficiencies = map[string]bool{"basic": true, "intermediate": true, "advanced": true}
	accents       = map[string]bool{"american": true, "british": true, "australian": true, "neutral": true}
	avatars       = map[string]bool{AvatarHR: true, AvatarMentor: true, AvatarRobot: true}
)

// SessionConfig is captured at session start and never mutated afterwards.
type SessionConfig struct {
	Mode           Mode   `json:"mode" bson:"mode"`
	Topic          string `json:"topic,omitempty" bson:"topic,omitempty"`
	Proficiency    string `json:"proficiency,omitempty" bson:"proficiency,omitempty"`
	Accent         string `json:"accent,omitempty" bson:"accent,omitempty"`
	JobRole        string `json:"jobRole,omitempty" bson:"jobRole,omitempty"`
	JobDescription string `json:"jobDescription,omitempty" bson:"jobDescription,omitempty"`
	Persona        string `json:"persona,omitempty" bson:"persona,omitempty"`
	Avatar         string `json:"avatar,omitempty" bson:"avatar,omitempty"`
	MaxExchanges   int    `json:"maxExchanges,omitempty" bson:"maxExchanges,omitempty"`
}

// IsInterview reports whether the mode is one of the mock interview variants.
func (m Mode) IsInterview() bool {
	return m == ModeTechnical || m == ModeHR || m == ModeMixed
}

// WithDefaults fills optional fields. It does not validate.
func (c SessionConfig) WithDefaults() SessionConfig {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	c.Topic = strings.ToLower(strings.TrimSpace(c.Topic))
	c.Proficiency = strings.ToLower(strings.TrimSpace(c.Proficiency))
	c.Accent = strings.ToLower(strings.TrimSpace(c.Accent))
	c.JobRole = strings.TrimSpace(c.JobRole)
	c.Persona = strings.TrimSpace(c.Persona)
	c.Avatar = strings.TrimSpace(c.Avatar)
	if c.MaxExchanges == 0 {
		c.MaxExchanges = DefaultMaxExchanges
	}
	if c.Mode == ModeEnglishPractice && c.Accent == "" {
		c.Accent = "neutral"
	}
	return c
}

// Validate reports missing or unknown fields as ErrConfig.
func (c SessionConfig) Validate() error {
	switch {
	case c.Mode == "":
		return fmt.Errorf("%w: mode is required", ErrConfig)
	case c.MaxExchanges < 1:
		return fmt.Errorf("%w: maxExchanges must be positive, got %d", ErrConfig, c.MaxExchanges)
	case c.Avatar != "" && !avatars[c.Avatar]:
		return fmt.Errorf("%w: unknown avatar %q", ErrConfig, c.Avatar)
	}

	if c.Mode.IsInterview() {
		if c.JobRole == "" {
			return fmt.Errorf("%w: jobRole is required for %s interviews", ErrConfig, c.Mode)
		}
		return nil
	}

	if c.Mode != ModeEnglishPractice {
		return fmt.Errorf("%w: unknown mode %q", ErrConfig, c.Mode)
	}
	if !practiceTopics[c.Topic] {
		return fmt.Errorf("%w: unknown practice topic %q", ErrConfig, c.Topic)
	}
	if !proficiencies[c.Proficiency] {
		return fmt.Errorf("%w: unknown proficiency %q", ErrConfig, c.Proficiency)
	}
	if c.Accent != "" && !accents[c.Accent] {
		return fmt.Errorf("%w: unknown accent %q", ErrConfig, c.Accent)
	}
	return nil
}
