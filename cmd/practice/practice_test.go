package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"careerlens/internal/domain"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	cfg, uid, err := parseFlags([]string{"--mode", "hr", "--role", "Designer", "--max-exchanges", "4", "--uid", "u1"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Mode != domain.ModeHR || cfg.JobRole != "Designer" || cfg.MaxExchanges != 4 || uid != "u1" {
		t.Fatalf("unexpected config: %+v uid=%q", cfg, uid)
	}

	cfg, _, err = parseFlags([]string{"--mode", "english-practice", "--role", "ignored", "--topic", "travel"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.JobRole != "" || cfg.Topic != "travel" {
		t.Fatalf("unexpected practice config: %+v", cfg)
	}

	if _, _, err := parseFlags([]string{"--nope"}); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}

func TestConsoleOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	c := newConsole(&buf)
	c.PartialTranscript("I think")
	c.TurnCommitted(1, domain.TranscriptItem{Speaker: domain.SpeakerUser, Text: "I think so"}, nil)
	c.TurnCommitted(2, domain.TranscriptItem{Speaker: domain.SpeakerAI, Text: "Why?"}, &domain.FeedbackReport{
		Grammar: domain.GrammarFeedback{Score: 80}, Encouragement: "Nice.",
	})
	c.SessionStateChanged(domain.PhaseAwaitingResponse, domain.SessionReasonListening)
	c.SessionStateChanged(domain.PhaseActive, domain.SessionReasonGenerating)
	c.SessionError(domain.ErrorCodeRender, "ffplay exited")
	c.Summary(domain.SessionRecord{
		EndReason:     domain.SessionReasonCompleted,
		ExchangeCount: 2,
		Feedback:      map[int]domain.FeedbackReport{0: {Grammar: domain.GrammarFeedback{Score: 70}}, 2: {Grammar: domain.GrammarFeedback{Score: 90}}},
	})

	want := strings.Join([]string{
		"\r  … I think",
		"You: I think so",
		"Coach: Why?",
		"  grammar 80, pronunciation 0, fluency 0. Nice.",
		"[listening]",
		"! render: ffplay exited",
		"Session ended (session_completed) after 2 AI turns.",
		"Average grammar score: 80",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", got, want)
	}
}

type fakeTarget struct {
	mu     sync.Mutex
	texts  []string
	ended  bool
	submit error
}

func (f *fakeTarget) SubmitUtterance(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.submit
}

func (f *fakeTarget) End(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	return nil
}

func TestReadTyped(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{}
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		readTyped(context.Background(), strings.NewReader("first answer\n\n/end\nignored\n"), target, newConsole(&buf))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("readTyped did not return")
	}

	if len(target.texts) != 1 || target.texts[0] != "first answer" || !target.ended {
		t.Fatalf("unexpected submissions: %+v ended=%v", target.texts, target.ended)
	}
}

func TestReadTypedReportsBusy(t *testing.T) {
	t.Parallel()

	target := &fakeTarget{submit: domain.ErrTurnInProgress}
	var buf bytes.Buffer
	readTyped(context.Background(), strings.NewReader("too soon\n"), target, newConsole(&buf))
	if !strings.Contains(buf.String(), "wait for the question") {
		t.Fatalf("expected busy notice, got %q", buf.String())
	}
}
