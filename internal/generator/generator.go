// Package generator turns a turn directive into the next AI turn by calling
// the external text-generation capability and validating what comes back.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"careerlens/internal/domain"
	"careerlens/internal/ports"
)

const (
	defaultAttemptTimeout = 20 * time.Second
	defaultRetryDelay     = 250 * time.Millisecond
)

var errInvalidOutput = errors.New("output failed schema validation")

// Request is everything needed to produce one AI turn.
type Request struct {
	Profile    *domain.UserProfile
	Transcript []domain.TranscriptItem
	Config     domain.SessionConfig
	Directive  domain.TurnDirective
}

// Generator builds prompts from the mode table and validates structured output.
type Generator struct {
	llm        ports.TextGenerator
	templates  *Templates
	validate   *validator.Validate
	logger     *slog.Logger
	timeout    time.Duration
	retryDelay time.Duration
}

type Option func(*Generator)

func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func WithTemplates(t *Templates) Option {
	return func(g *Generator) {
		if t != nil {
			g.templates = t
		}
	}
}

// WithAttemptTimeout bounds each call to the text generator.
func WithAttemptTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.retryDelay = d
		}
	}
}

func New(llm ports.TextGenerator, opts ...Option) *Generator {
	g := &Generator{
		llm:        llm,
		validate:   validator.New(),
		logger:     slog.Default(),
		timeout:    defaultAttemptTimeout,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.templates == nil {
		g.templates = DefaultTemplates()
	}
	return g
}

type turnOutput struct {
	PrivateAnalysis  string                 `json:"privateAnalysis"`
	ResponseText     string                 `json:"responseText"`
	Response         string                 `json:"response"`
	Greeting         string                 `json:"greeting"`
	QuestionCategory string                 `json:"questionCategory"`
	Feedback         *domain.FeedbackReport `json:"feedback"`
	IsEndOfSession   bool                   `json:"isEndOfSession"`
}

// Generate produces the next AI turn. A failed attempt is retried once with
// the same prompt; after that the error wraps domain.ErrGeneration.
func (g *Generator) Generate(ctx context.Context, req Request) (domain.GenerationResult, error) {
	prompt, err := g.templates.BuildPrompt(req)
	if err != nil {
		return domain.GenerationResult{}, err
	}

	attempts := 0
	var result domain.GenerationResult
	operation := func() error {
		attempts++
		res, err := g.attempt(ctx, prompt, req.Directive)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			g.logger.Warn("generation attempt failed",
				"mode", req.Config.Mode, "attempt", attempts, "error", err)
			return err
		}
		result = res
		return nil
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retryDelay), 1), ctx)
	if err := backoff.Retry(operation, retry); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.GenerationResult{}, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return domain.GenerationResult{}, fmt.Errorf("%w after %d attempts: %v", domain.ErrGeneration, attempts, err)
	}
	return result, nil
}

func (g *Generator) attempt(ctx context.Context, prompt Prompt, directive domain.TurnDirective) (domain.GenerationResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.llm.Generate(attemptCtx, prompt.Request)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return g.parse(raw, prompt.WantFeedback, directive)
}

func (g *Generator) parse(raw string, wantFeedback bool, directive domain.TurnDirective) (domain.GenerationResult, error) {
	var out turnOutput
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: %v", errInvalidOutput, err)
	}

	text := strings.TrimSpace(firstNonEmpty(out.ResponseText, out.Response, out.Greeting))
	if err := g.validate.Var(text, "required"); err != nil {
		return domain.GenerationResult{}, fmt.Errorf("%w: response text: %v", errInvalidOutput, err)
	}
	switch {
	case wantFeedback && out.Feedback == nil:
		return domain.GenerationResult{}, fmt.Errorf("%w: feedback is required", errInvalidOutput)
	case out.Feedback != nil:
		if err := g.validate.Struct(out.Feedback); err != nil {
			return domain.GenerationResult{}, fmt.Errorf("%w: feedback: %v", errInvalidOutput, err)
		}
	}

	category := directive.QuestionCategory
	if c := strings.TrimSpace(out.QuestionCategory); c != "" && !directive.Opening && !directive.ShouldWrapUp {
		category = domain.QuestionCategory(c)
	}

	return domain.GenerationResult{
		ResponseText:     text,
		QuestionCategory: category,
		PrivateAnalysis:  strings.TrimSpace(out.PrivateAnalysis),
		Feedback:         out.Feedback,
		IsEndOfSession:   out.IsEndOfSession,
	}, nil
}

// stripCodeFence tolerates models that wrap JSON in a markdown fence.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
