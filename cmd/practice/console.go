package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// console is the terminal event sink.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	partial bool
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endPartialLocked()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *console) endPartialLocked() {
	if c.partial {
		fmt.Fprintln(c.w)
		c.partial = false
	}
}

func (c *console) SessionStateChanged(phase domain.Phase, reason domain.SessionStateReason) {
	switch reason {
	case domain.SessionReasonListening, domain.SessionReasonWrappingUp, domain.SessionReasonCompleted:
		c.Printf("[%s]", strings.ReplaceAll(string(reason), "_", " "))
	case domain.SessionReasonResourcesUnavailable, domain.SessionReasonGenerationFailed, domain.SessionReasonRenderFailed:
		c.Printf("[%s: %s]", phase, reason)
	}
}

func (c *console) PartialTranscript(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\r  … %s", text)
	c.partial = true
}

func (c *console) TurnCommitted(_ int, item domain.TranscriptItem, feedback *domain.FeedbackReport) {
	who := "You"
	if item.Speaker == domain.SpeakerAI {
		who = "Coach"
	}
	c.Printf("%s: %s", who, item.Text)
	if feedback != nil {
		c.Printf("  grammar %d, pronunciation %d, fluency %d. %s",
			feedback.Grammar.Score, feedback.Pronunciation.Score, feedback.Fluency.Score, feedback.Encouragement)
	}
}

func (c *console) HandshakeReady(ports.Handshake) {}

func (c *console) SessionError(code domain.ErrorCode, detail string) {
	c.Printf("! %s: %s", code, detail)
}

// Summary prints the outcome of a finished session.
func (c *console) Summary(record domain.SessionRecord) {
	c.Printf("Session ended (%s) after %d AI turns.", record.EndReason, record.ExchangeCount)
	if len(record.Feedback) == 0 {
		return
	}
	indexes := make([]int, 0, len(record.Feedback))
	for i := range record.Feedback {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	total := 0
	for _, i := range indexes {
		total += record.Feedback[i].Grammar.Score
	}
	c.Printf("Average grammar score: %d", total/len(indexes))
}
