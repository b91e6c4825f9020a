package generator

import "careerlens/internal/ports"

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func score() map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "maximum": 100}
}

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

var feedbackSchema = object(
	[]string{"grammar", "vocabulary", "pronunciation", "fluency", "encouragement"},
	map[string]any{
		"grammar": object([]string{"score", "issues", "suggestions"}, map[string]any{
			"score": score(), "issues": stringArray(), "suggestions": stringArray(),
		}),
		"vocabulary": object([]string{"newWords", "suggestions"}, map[string]any{
			"newWords": stringArray(), "suggestions": stringArray(),
		}),
		"pronunciation": object([]string{"score", "tips"}, map[string]any{
			"score": score(), "tips": stringArray(),
		}),
		"fluency": object([]string{"score", "observations"}, map[string]any{
			"score": score(), "observations": stringArray(),
		}),
		"encouragement": map[string]any{"type": "string"},
	},
)

var schemas = map[string]ports.OutputSchema{
	"interview": {
		Name: "interview_turn",
		Schema: object(
			[]string{"privateAnalysis", "responseText", "questionCategory", "isEndOfSession"},
			map[string]any{
				"privateAnalysis":  map[string]any{"type": "string"},
				"responseText":     map[string]any{"type": "string"},
				"questionCategory": map[string]any{"type": "string"},
				"isEndOfSession":   map[string]any{"type": "boolean"},
			},
		),
	},
	"practice": {
		Name: "practice_turn",
		Schema: object(
			[]string{"responseText", "feedback", "isEndOfSession"},
			map[string]any{
				"responseText":   map[string]any{"type": "string"},
				"feedback":       feedbackSchema,
				"isEndOfSession": map[string]any{"type": "boolean"},
			},
		),
	},
	"practiceStarter": {
		Name: "practice_starter",
		Schema: object(
			[]string{"responseText", "isEndOfSession"},
			map[string]any{
				"responseText":   map[string]any{"type": "string"},
				"isEndOfSession": map[string]any{"type": "boolean"},
			},
		),
	},
}

// feedback is required on every practice turn except the greeting.
func schemaWantsFeedback(name string) bool {
	return name == "practice"
}
