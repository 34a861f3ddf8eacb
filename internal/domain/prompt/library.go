// Package prompt: template library for the remote proxy.
// A Library maps each optimization mode to a system template and the response
// type the proxy reports for it, and renders the final model prompt.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/matiasleandrokruk/promptpolish/internal/domain/polish"
)

//go:embed templates/default.yaml
var defaultTemplates []byte

// Template is one mode entry of a TemplateSet.
type Template struct {
	System string `yaml:"system"`
	Type   string `yaml:"type"`
}

// TemplateSet is the YAML shape of a prompt library.
type TemplateSet struct {
	Fallback   string              `yaml:"fallback"`
	Modes      map[string]Template `yaml:"modes"`
	DeepPolish string              `yaml:"deep_polish"`
}

// Input is what the proxy receives from a client.
type Input struct {
	Text              string
	Mode              polish.Mode
	CustomInstruction string
	DeepPolish        bool
}

// Rendered is a prompt ready for a provider, plus its generation parameters.
type Rendered struct {
	Mode        polish.Mode
	Type        polish.ResultType
	Prompt      string
	Temperature float32
	MaxTokens   int
}

type entry struct {
	tmpl *template.Template
	typ  polish.ResultType
}

// Library renders prompts. It is immutable after construction.
type Library struct {
	fallback polish.Mode
	modes    map[polish.Mode]entry
	deep     *template.Template
}

// vars is the data every template sees.
type vars struct {
	Rules     string
	Candidate string
}

// ParseTemplateSet decodes a YAML prompt library.
func ParseTemplateSet(raw []byte) (TemplateSet, error) {
	var set TemplateSet
	if err := yaml.Unmarshal(raw, &set); err != nil {
		return TemplateSet{}, fmt.Errorf("prompt: parse template set: %w", err)
	}
	return set, nil
}

// DefaultTemplateSet returns the built-in library definition.
func DefaultTemplateSet() TemplateSet {
	set, err := ParseTemplateSet(defaultTemplates)
	if err != nil {
		panic(err)
	}
	return set
}

// DefaultLibrary compiles the built-in templates.
func DefaultLibrary() *Library {
	lib, err := NewLibrary(DefaultTemplateSet())
	if err != nil {
		panic(err)
	}
	return lib
}

// NewLibrary compiles set. The fallback mode must be present.
func NewLibrary(set TemplateSet) (*Library, error) {
	if len(set.Modes) == 0 {
		return nil, errors.New("prompt: template set has no modes")
	}
	lib := &Library{
		fallback: polish.Mode(set.Fallback).OrDefault(),
		modes:    make(map[polish.Mode]entry, len(set.Modes)),
	}
	for name, t := range set.Modes {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(t.System)
		if err != nil {
			return nil, fmt.Errorf("prompt: mode %q: %w", name, err)
		}
		lib.modes[polish.Mode(name)] = entry{tmpl: tmpl, typ: resultType(t.Type)}
	}
	if _, ok := lib.modes[lib.fallback]; !ok {
		return nil, fmt.Errorf("prompt: fallback mode %q has no template", lib.fallback)
	}
	if strings.TrimSpace(set.DeepPolish) != "" {
		deep, err := template.New("deep_polish").Parse(set.DeepPolish)
		if err != nil {
			return nil, fmt.Errorf("prompt: deep polish: %w", err)
		}
		lib.deep = deep
	}
	return lib, nil
}

// Modes lists the modes with a template of their own.
func (l *Library) Modes() []polish.Mode {
	out := make([]polish.Mode, 0, len(l.modes))
	for _, m := range polish.Modes() {
		if _, ok := l.modes[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Render builds the model prompt for in. Unknown modes use the fallback
// template; deep polish replaces suggestion templates only.
func (l *Library) Render(in Input) (Rendered, error) {
	mode := in.Mode.OrDefault()
	e, ok := l.modes[mode]
	if !ok {
		mode = l.fallback
		e = l.modes[mode]
	}

	v := vars{}
	if mode == polish.ModeAnalyzeComparison {
		v.Candidate = in.CustomInstruction
	} else if in.CustomInstruction != "" {
		v.Rules = "<user_constraints>" + in.CustomInstruction + "</user_constraints>"
	}

	tmpl := e.tmpl
	deep := in.DeepPolish && l.deep != nil && e.typ == polish.TypeSuggestion
	if deep {
		tmpl = l.deep
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, v); err != nil {
		return Rendered{}, fmt.Errorf("prompt: render %s: %w", mode, err)
	}
	system := strings.TrimRight(sb.String(), "\n")

	temp, maxTokens := generationParams(mode, deep)
	return Rendered{
		Mode:        mode,
		Type:        e.typ,
		Prompt:      system + "\n\n<user_input>\n" + in.Text + "\n</user_input>",
		Temperature: temp,
		MaxTokens:   maxTokens,
	}, nil
}

func generationParams(mode polish.Mode, deep bool) (float32, int) {
	switch {
	case deep:
		return 0.7, 2048
	case mode == polish.ModeCreative:
		return 0.9, 1000
	default:
		return 0.3, 1000
	}
}

func resultType(s string) polish.ResultType {
	switch polish.ResultType(s) {
	case polish.TypeAnalysis, polish.TypeClarification:
		return polish.ResultType(s)
	default:
		return polish.TypeSuggestion
	}
}
