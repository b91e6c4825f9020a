package usecase

import "strings"

// utteranceBuffer accumulates the user's in-progress answer. Partials from
// one capture are cumulative and replace each other; when a capture ends
// early its last partial is carried into the next one.
type utteranceBuffer struct {
	carried []string
	current string
}

func (b *utteranceBuffer) SetPartial(text string) {
	b.current = strings.TrimSpace(text)
}

// Carry keeps the current partial across a capture restart.
func (b *utteranceBuffer) Carry() {
	if b.current != "" {
		b.carried = append(b.carried, b.current)
	}
	b.current = ""
}

func (b *utteranceBuffer) Text() string {
	parts := append(append([]string(nil), b.carried...), b.current)
	return strings.TrimSpace(strings.Join(parts, " "))
}

func (b *utteranceBuffer) Reset() {
	b.carried = nil
	b.current = ""
}
