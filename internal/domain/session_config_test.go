package domain

import (
	"errors"
	"testing"
)

func TestSessionConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := SessionConfig{Mode: " English-Practice ", Topic: "Daily", Proficiency: "BASIC"}.WithDefaults()
	if cfg.Mode != ModeEnglishPractice {
		t.Fatalf("expected english-practice mode, got %q", cfg.Mode)
	}
	if cfg.MaxExchanges != DefaultMaxExchanges {
		t.Fatalf("expected default max exchanges, got %d", cfg.MaxExchanges)
	}
	if cfg.Accent != "neutral" {
		t.Fatalf("expected neutral accent, got %q", cfg.Accent)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSessionConfigValidateRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  SessionConfig
	}{
		{"missing mode", SessionConfig{MaxExchanges: 6}},
		{"unknown mode", SessionConfig{Mode: "karaoke", MaxExchanges: 6}},
		{"interview without role", SessionConfig{Mode: ModeHR, MaxExchanges: 6}},
		{"practice without topic", SessionConfig{Mode: ModeEnglishPractice, Proficiency: "basic", MaxExchanges: 6}},
		{"practice bad proficiency", SessionConfig{Mode: ModeEnglishPractice, Topic: "daily", Proficiency: "expert", MaxExchanges: 6}},
		{"negative exchanges", SessionConfig{Mode: ModeTechnical, JobRole: "SRE", MaxExchanges: -1}},
		{"unknown avatar", SessionConfig{Mode: ModeMixed, JobRole: "PM", Avatar: "Pirate", MaxExchanges: 6}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestSessionConfigValidateInterview(t *testing.T) {
	t.Parallel()

	cfg := SessionConfig{Mode: ModeTechnical, JobRole: "Backend Engineer", Avatar: "Robot"}.WithDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if !cfg.Mode.IsInterview() {
		t.Fatalf("expected technical to be an interview mode")
	}
}
