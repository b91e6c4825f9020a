package generator

import (
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"

	"careerlens/internal/domain"
)

//go:embed templates.yaml
var defaultTemplates []byte

type guidanceTable struct {
	InterviewTypes     map[string]string `yaml:"interviewTypes"`
	Proficiency        map[string]string `yaml:"proficiency"`
	StarterProficiency map[string]string `yaml:"starterProficiency"`
	Topics             map[string]string `yaml:"topics"`
	StarterTopics      map[string]string `yaml:"starterTopics"`
	Accents            map[string]string `yaml:"accents"`
}

type modeDef struct {
	Persona            string  `yaml:"persona"`
	Schema             string  `yaml:"schema"`
	OpeningSchema      string  `yaml:"openingSchema"`
	Temperature        float64 `yaml:"temperature"`
	OpeningTemperature float64 `yaml:"openingTemperature"`
	InlineTranscript   bool    `yaml:"inlineTranscript"`
	System             string  `yaml:"system"`
	Instruction        string  `yaml:"instruction"`
}

type templateFile struct {
	Guidance guidanceTable            `yaml:"guidance"`
	Modes    map[domain.Mode]modeDef `yaml:"modes"`
}

type compiledMode struct {
	def         modeDef
	system      *template.Template
	instruction *template.Template
}

// Templates is the mode lookup table: persona, prompt templates, output
// schema and sampling temperature per session mode.
type Templates struct {
	guidance guidanceTable
	modes    map[domain.Mode]compiledMode
}

// DefaultTemplates returns the embedded table.
func DefaultTemplates() *Templates {
	t, err := ParseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("embedded templates are invalid: %v", err))
	}
	return t
}

// LoadTemplatesFile reads a replacement table from disk.
func LoadTemplatesFile(path string) (*Templates, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file %q: %w", path, err)
	}
	t, err := ParseTemplates(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates file %q: %w", path, err)
	}
	return t, nil
}

func ParseTemplates(raw []byte) (*Templates, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	if len(file.Modes) == 0 {
		return nil, fmt.Errorf("no modes defined")
	}

	out := &Templates{guidance: file.Guidance, modes: make(map[domain.Mode]compiledMode, len(file.Modes))}
	for mode, def := range file.Modes {
		if _, ok := schemas[def.Schema]; !ok {
			return nil, fmt.Errorf("mode %s: unknown schema %q", mode, def.Schema)
		}
		if def.OpeningSchema == "" {
			def.OpeningSchema = def.Schema
		}
		if _, ok := schemas[def.OpeningSchema]; !ok {
			return nil, fmt.Errorf("mode %s: unknown opening schema %q", mode, def.OpeningSchema)
		}
		if def.OpeningTemperature == 0 {
			def.OpeningTemperature = def.Temperature
		}

		system, err := template.New(string(mode) + ".system").Option("missingkey=error").Parse(def.System)
		if err != nil {
			return nil, fmt.Errorf("mode %s system template: %w", mode, err)
		}
		instruction, err := template.New(string(mode) + ".instruction").Option("missingkey=error").Parse(def.Instruction)
		if err != nil {
			return nil, fmt.Errorf("mode %s instruction template: %w", mode, err)
		}
		out.modes[mode] = compiledMode{def: def, system: system, instruction: instruction}
	}
	return out, nil
}

func (t *Templates) lookup(mode domain.Mode) (compiledMode, error) {
	m, ok := t.modes[mode]
	if !ok {
		return compiledMode{}, fmt.Errorf("%w: no prompt template for mode %q", domain.ErrConfig, mode)
	}
	return m, nil
}
