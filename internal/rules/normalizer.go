// Package rules rewrites captured speech with deterministic vocabulary
// corrections before it reaches the transcript.
package rules

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

//go:embed default.rules
var defaultRules string

// Normalizer implements ports.UtteranceNormalizer. Rules come from the
// built-in vocabulary followed by an optional rules file, and can be
// reloaded while sessions are running.
type Normalizer struct {
	path      string
	loopLimit int
	parsers   []RuleParser
	logger    *slog.Logger

	rules atomic.Pointer[[]rule]
}

type Option func(*Normalizer)

// WithParsers prepends extra rule formats.
func WithParsers(parsers ...RuleParser) Option {
	return func(n *Normalizer) { n.parsers = append(parsers, n.parsers...) }
}

func WithLoopLimit(limit int) Option {
	return func(n *Normalizer) {
		if limit > 0 {
			n.loopLimit = limit
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New loads the built-in vocabulary plus the rules file at path. A missing
// file is not an error.
func New(path string, opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		path:      strings.TrimSpace(path),
		loopLimit: 30,
		parsers:   defaultParsers(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.Reload(); err != nil {
		return nil, err
	}
	return n, nil
}

// Reload re-reads the rules file. On error the previous rules stay active.
func (n *Normalizer) Reload() error {
	loaded, err := parseRules(defaultRules, n.parsers)
	if err != nil {
		return fmt.Errorf("built-in rules: %w", err)
	}

	if n.path != "" {
		contents, err := os.ReadFile(n.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return fmt.Errorf("read rules file %q: %w", n.path, err)
		default:
			custom, err := parseRules(string(contents), n.parsers)
			if err != nil {
				return fmt.Errorf("parse rules file %q: %w", n.path, err)
			}
			loaded = append(loaded, custom...)
		}
	}

	n.rules.Store(&loaded)
	return nil
}

func (n *Normalizer) Len() int {
	if rules := n.rules.Load(); rules != nil {
		return len(*rules)
	}
	return 0
}

// Apply runs every rule until the text stops changing or the loop limit
// is hit, then collapses whitespace.
func (n *Normalizer) Apply(text string) (string, error) {
	rules := n.rules.Load()
	if rules == nil {
		return strings.TrimSpace(text), nil
	}

	result := text
	for i := 0; i < n.loopLimit; i++ {
		changed := false
		for _, r := range *rules {
			if next, ok := r.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.Join(strings.Fields(result), " "), nil
}

// Watch reloads rules whenever the rules file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are
// picked up.
func (n *Normalizer) Watch(ctx context.Context) error {
	if n.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch rules: %w", err)
	}
	if err := watcher.Add(filepath.Dir(n.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch rules directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(n.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
					continue
				}
				if err := n.Reload(); err != nil {
					n.logger.Warn("rules reload failed; keeping previous rules", "path", n.path, "error", err)
					continue
				}
				n.logger.Info("rules reloaded", "path", n.path, "rules", n.Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				n.logger.Warn("rules watcher error", "error", err)
			}
		}
	}()
	return nil
}
