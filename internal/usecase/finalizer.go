package usecase

import (
	"context"
	"fmt"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

// sessionFinalizer applies the utterance rules and archives finished
// sessions. Neither failure is fatal to the session.
type sessionFinalizer struct {
	rules   ports.UtteranceNormalizer
	archive ports.SessionArchive
	events  ports.EventSink
}

func newSessionFinalizer(rules ports.UtteranceNormalizer, archive ports.SessionArchive, events ports.EventSink) sessionFinalizer {
	return sessionFinalizer{rules: rules, archive: archive, events: events}
}

// Normalize returns the rewritten utterance, or raw when the rules fail.
func (f sessionFinalizer) Normalize(raw string) string {
	if f.rules == nil {
		return raw
	}
	transformed, err := f.rules.Apply(raw)
	if err != nil {
		f.events.SessionError(domain.ErrorCodeRules, err.Error())
		return raw
	}
	if transformed == "" {
		return raw
	}
	return transformed
}

func (f sessionFinalizer) Archive(ctx context.Context, record domain.SessionRecord) error {
	if f.archive == nil {
		return nil
	}
	if err := f.archive.Save(ctx, record); err != nil {
		f.events.SessionError(domain.ErrorCodeArchive, "session finished but could not be archived")
		return fmt.Errorf("archive session %s: %w", record.ID, err)
	}
	return nil
}
