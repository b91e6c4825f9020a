package policy

import "careerlens/internal/domain"

// Archetype is one question style the policy cycles through.
type Archetype struct {
	Category    domain.QuestionCategory
	Instruction string
}

var (
	opening = Archetype{
		Category:    domain.CategoryOpeningClosing,
		Instruction: "Open warmly, introduce yourself briefly and ask one classic opener tailored to the candidate.",
	}
	closing = Archetype{
		Category:    domain.CategoryOpeningClosing,
		Instruction: "Close the conversation: thank them, summarize what went well and give one concrete tip.",
	}
)

var archetypes = map[domain.Mode][]Archetype{
	domain.ModeTechnical: {
		{"Technical", "Ask a focused technical question about a core skill the role depends on."},
		{"Problem-Solving", "Pose a small practical problem and ask how they would approach it step by step."},
		{"System Design", "Ask them to sketch how they would design or scale a component relevant to the role."},
		{"Behavioral", "Ask for a specific past example, and expect a STAR-shaped answer."},
		{"Deep Dive", "Dig into a project from their profile and ask about a tradeoff they made."},
	},
	domain.ModeHR: {
		{"Behavioral", "Ask for a specific past example, and expect a STAR-shaped answer."},
		{"Situational", "Describe a realistic workplace situation and ask how they would handle it."},
		{"Motivation", "Ask what draws them to this role and where they want to grow."},
		{"Culture Fit", "Ask how they like to collaborate and handle disagreement in a team."},
		{"Strengths & Weaknesses", "Ask about a strength they rely on and a weakness they are working on."},
	},
	domain.ModeMixed: {
		{"Behavioral", "Ask for a specific past example, and expect a STAR-shaped answer."},
		{"Technical", "Ask a focused technical question about a core skill the role depends on."},
		{"Situational", "Describe a realistic workplace situation and ask how they would handle it."},
		{"Role-Specific", "Ask about a responsibility that is central to the target job role."},
		{"Motivation", "Ask what draws them to this role and where they want to grow."},
	},
	domain.ModeEnglishPractice: {
		{"Elaboration", `Ask them to elaborate with "Can you tell me more about...?"`},
		{"Opinion", `Ask for their opinion: "What do you think about...?"`},
		{"Description", "Ask them to describe something in detail"},
		{"Comparison", "Ask them to compare or contrast two things"},
		{"Personal Experience", "Ask about their personal experience related to the topic"},
		{"Hypothetical", `Challenge them with a "what if" or hypothetical question`},
		{"Teaching", "Ask them to explain something as if teaching someone"},
	},
}

// Archetypes returns the ordered cycle for a mode.
func Archetypes(mode domain.Mode) []Archetype {
	return append([]Archetype(nil), archetypes[mode]...)
}
