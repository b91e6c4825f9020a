package speech

import (
	"strings"
	"sync"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// transcriptAggregator folds provider events into the cumulative text of
// the utterance in progress: every final segment plus the latest interim.
type transcriptAggregator struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add reports the new cumulative text and whether it changed.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return a.textLocked(), false
	}

	before := a.textLocked()
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.interim = ""
	} else {
		a.interim = text
	}
	after := a.textLocked()
	return after, after != before
}

func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.textLocked()
}

func (a *transcriptAggregator) textLocked() string {
	parts := append([]string(nil), a.finals...)
	if a.interim != "" {
		parts = append(parts, a.interim)
	}
	return strings.Join(parts, " ")
}

func consumeTranscriptionEvents(
	session ports.StreamingSession,
	aggregator *transcriptAggregator,
	partials chan<- string,
	stop <-chan struct{},
) {
	for event := range session.Events() {
		text, changed := aggregator.Add(event)
		if !changed || text == "" {
			continue
		}
		select {
		case partials <- text:
		case <-stop:
			// Drain so the provider never blocks on a stopped capture.
		}
	}
}
