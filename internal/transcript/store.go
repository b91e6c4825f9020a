// Package transcript holds the append-only turn log of one session.
package transcript

import (
	"fmt"
	"strings"
	"sync"

	"careerlens/internal/domain"
)

// Store is an ordered, append-only log of speaker-tagged turns.
type Store struct {
	mu     sync.RWMutex
	items  []domain.TranscriptItem
	aiN    int
	userN  int
	sealed bool
}

func NewStore() *Store {
	return &Store{}
}

// FromItems loads a client-supplied transcript. Consecutive user items are
// merged into one turn before the ordering rules are applied.
func FromItems(items []domain.TranscriptItem) (*Store, error) {
	s := NewStore()
	for _, item := range mergeUserRuns(items) {
		if err := s.Append(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds one turn. AI turns must be separated by a user turn once the
// user has spoken; timestamps must not go backwards.
func (s *Store) Append(item domain.TranscriptItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return domain.ErrTranscriptSealed
	}
	if item.Speaker != domain.SpeakerUser && item.Speaker != domain.SpeakerAI {
		return fmt.Errorf("%w: unknown speaker %q", domain.ErrInvalidTurn, item.Speaker)
	}
	if strings.TrimSpace(item.Text) == "" {
		return fmt.Errorf("%w: empty %s turn", domain.ErrInvalidTurn, item.Speaker)
	}

	if n := len(s.items); n > 0 {
		last := s.items[n-1]
		if item.Timestamp.Before(last.Timestamp) {
			return fmt.Errorf("%w: timestamp %s precedes %s", domain.ErrInvalidTurn,
				item.Timestamp.Format("15:04:05.000"), last.Timestamp.Format("15:04:05.000"))
		}
		if item.Speaker == domain.SpeakerAI && last.Speaker == domain.SpeakerAI && s.userN > 0 {
			return fmt.Errorf("%w: consecutive ai turns at index %d", domain.ErrInvalidTurn, n)
		}
	}

	s.items = append(s.items, item)
	if item.Speaker == domain.SpeakerAI {
		s.aiN++
	} else {
		s.userN++
	}
	return nil
}

// Items returns a copy of the log in conversational order.
func (s *Store) Items() []domain.TranscriptItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TranscriptItem(nil), s.items...)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// AITurns is the exchange count of the session.
func (s *Store) AITurns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aiN
}

func (s *Store) Last() (domain.TranscriptItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return domain.TranscriptItem{}, false
	}
	return s.items[len(s.items)-1], true
}

// Seal makes the store read-only.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// CountAI counts AI turns in an arbitrary item slice.
func CountAI(items []domain.TranscriptItem) int {
	n := 0
	for _, item := range items {
		if item.Speaker == domain.SpeakerAI {
			n++
		}
	}
	return n
}

// LastUserText returns the most recent user turn, or "".
func LastUserText(items []domain.TranscriptItem) string {
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Speaker == domain.SpeakerUser {
			return items[i].Text
		}
	}
	return ""
}

func mergeUserRuns(items []domain.TranscriptItem) []domain.TranscriptItem {
	merged := make([]domain.TranscriptItem, 0, len(items))
	for _, item := range items {
		item.Text = strings.TrimSpace(item.Text)
		if item.Text == "" {
			continue
		}
		n := len(merged)
		if n > 0 && item.Speaker == domain.SpeakerUser && merged[n-1].Speaker == domain.SpeakerUser {
			merged[n-1].Text = merged[n-1].Text + " " + item.Text
			if item.Timestamp.After(merged[n-1].Timestamp) {
				merged[n-1].Timestamp = item.Timestamp
			}
			continue
		}
		merged = append(merged, item)
	}
	return merged
}
