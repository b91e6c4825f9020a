package generator

import (
	"fmt"
	"sort"
	"strings"

	"careerlens/internal/domain"
	"careerlens/internal/policy"
	"careerlens/internal/ports"
	"careerlens/internal/transcript"
)

type hint struct {
	Key   string
	Value string
}

type promptData struct {
	Persona        string
	Mode           domain.Mode
	JobRole        string
	JobDescription string
	Topic          string
	Proficiency    string
	Guidance       string
	TopicGuidance  string
	AccentGuidance string
	Profile        string
	Transcript     string
	LastAnswer     string
	Category       domain.QuestionCategory
	Progress       string
	Hints          []hint
	UserTurns      int
	Opening        bool
	WrapUp         bool
}

// Prompt is a fully rendered generation request plus the schema it expects back.
type Prompt struct {
	Request      ports.GenerationRequest
	SchemaName   string
	WantFeedback bool
}

// BuildPrompt renders the prompt for one turn. It is deterministic for a
// given input.
func (t *Templates) BuildPrompt(req Request) (Prompt, error) {
	mode, err := t.lookup(req.Config.Mode)
	if err != nil {
		return Prompt{}, err
	}

	d := req.Directive
	data := promptData{
		Persona:        firstNonEmpty(req.Config.Persona, mode.def.Persona),
		Mode:           req.Config.Mode,
		JobRole:        req.Config.JobRole,
		JobDescription: strings.TrimSpace(req.Config.JobDescription),
		Topic:          strings.ToUpper(req.Config.Topic),
		Proficiency:    strings.ToUpper(req.Config.Proficiency),
		AccentGuidance: t.guidance.Accents[req.Config.Accent],
		Profile:        renderProfile(req.Profile),
		LastAnswer:     transcript.LastUserText(req.Transcript),
		Category:       d.QuestionCategory,
		Progress:       d.StyleHints[policy.HintProgress],
		Hints:          sortedHints(d.StyleHints),
		Opening:        d.Opening,
		WrapUp:         d.ShouldWrapUp,
	}
	for _, item := range req.Transcript {
		if item.Speaker == domain.SpeakerUser {
			data.UserTurns++
		}
	}

	if req.Config.Mode.IsInterview() {
		data.Guidance = t.guidance.InterviewTypes[string(req.Config.Mode)]
	} else if d.Opening {
		data.Guidance = t.guidance.StarterProficiency[req.Config.Proficiency]
		data.TopicGuidance = t.guidance.StarterTopics[req.Config.Topic]
	} else {
		data.Guidance = t.guidance.Proficiency[req.Config.Proficiency]
		data.TopicGuidance = t.guidance.Topics[req.Config.Topic]
	}

	out := ports.GenerationRequest{Temperature: mode.def.Temperature}
	schemaName := mode.def.Schema
	if d.Opening {
		out.Temperature = mode.def.OpeningTemperature
		schemaName = mode.def.OpeningSchema
	}
	if mode.def.InlineTranscript {
		data.Transcript = renderTranscript(req.Transcript)
	} else {
		out.History = historyMessages(req.Transcript)
	}

	var b strings.Builder
	if err := mode.system.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render system prompt: %w", err)
	}
	out.SystemPersona = strings.TrimSpace(b.String())

	b.Reset()
	if err := mode.instruction.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render instruction: %w", err)
	}
	out.Instruction = strings.TrimSpace(b.String())

	schema := schemas[schemaName]
	out.Schema = &schema

	return Prompt{Request: out, SchemaName: schemaName, WantFeedback: schemaWantsFeedback(schemaName)}, nil
}

func renderTranscript(items []domain.TranscriptItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if item.Speaker == domain.SpeakerAI {
			b.WriteString("You: ")
		} else {
			b.WriteString("Student: ")
		}
		b.WriteString(item.Text)
	}
	return b.String()
}

func historyMessages(items []domain.TranscriptItem) []ports.Message {
	out := make([]ports.Message, 0, len(items))
	for _, item := range items {
		role := ports.RoleUser
		if item.Speaker == domain.SpeakerAI {
			role = ports.RoleAssistant
		}
		out = append(out, ports.Message{Role: role, Text: item.Text})
	}
	return out
}

func sortedHints(hints map[string]string) []hint {
	out := make([]hint, 0, len(hints))
	for k, v := range hints {
		if k == policy.HintProgress || k == policy.HintPace {
			continue
		}
		out = append(out, hint{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func renderProfile(p *domain.UserProfile) string {
	if p == nil {
		return "Not provided."
	}

	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Name", p.Name)
	add("Summary", p.Summary)
	add("Stated Career Goal", p.CareerGoals)

	skills := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		if v := strings.TrimSpace(s.Value); v != "" {
			skills = append(skills, v)
		}
	}
	add("Key Skills", strings.Join(skills, ", "))

	experience := make([]string, 0, len(p.Experience))
	for _, e := range p.Experience {
		experience = append(experience, strings.TrimSpace(e.Title+" at "+e.Company))
	}
	add("Experience", strings.Join(experience, "; "))

	education := make([]string, 0, len(p.Education))
	for _, e := range p.Education {
		education = append(education, strings.TrimSpace(e.Degree+", "+e.Institution))
	}
	add("Education", strings.Join(education, "; "))
	add("GitHub", p.GitHub)
	add("LinkedIn", p.LinkedIn)

	if len(lines) == 0 {
		return "Not provided."
	}
	return strings.Join(lines, "\n")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
