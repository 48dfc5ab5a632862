// Package prompt renders the persona, perspective and synthesis prompts sent
// to the generator. Wording is not part of any contract; the structure
// (which context each circuit sees) is.
package prompt

import (
	"github.com/hupe1980/insightmesh/core"
)

// Entry is one labelled perspective quoted inside a prompt.
type Entry struct {
	Name string
	Text string
}

// PerspectiveData feeds the perspective template.
type PerspectiveData struct {
	Question    string
	Domain      string
	Layer       int
	TotalLayers int
	Style       core.OutputStyle

	// Earlier perspectives of the same layer (sequential accumulation).
	Earlier []Entry

	// Output of the previous layer.
	PriorSynthesis    string
	PriorPerspectives []Entry
	Tensions          []string

	// Refine asks the archetype to refine or rebut the previous layer.
	Refine bool
}

// SynthesisData feeds the synthesis template.
type SynthesisData struct {
	Question     string
	Layer        int
	Style        core.OutputStyle
	Perspectives []Entry
}

var persona = must("persona", `
You are {{.Name}}{{if .Description}}, {{.Description}}{{end}}.
Speak in a {{default "plain" .LanguageStyle}} style.
Imagination: {{level .Imagination}}. Skepticism: {{level .Skepticism}}. Aggression: {{level .Aggression}}. Emotionality: {{level .Emotionality}}.
{{- if .Constraint}}
Constraint: {{.Constraint}}
{{- end}}
Stay in character and give one distinct perspective.
`)

var perspective = must("perspective", `
Question: {{.Question}}
Domain: {{.Domain}}
Layer {{.Layer}} of {{.TotalLayers}}.
{{- if .PriorSynthesis}}

Previous layer synthesis:
{{.PriorSynthesis}}
{{- end}}
{{- if .PriorPerspectives}}

Previous layer perspectives:
{{- range .PriorPerspectives}}
- {{.Name}}: {{.Text}}
{{- end}}
{{- end}}
{{- if .Tensions}}

Unresolved tensions: {{join .Tensions "; "}}
{{- end}}
{{- if .Earlier}}

Perspectives already given in this layer:
{{- range .Earlier}}
- {{.Name}}: {{.Text}}
{{- end}}
{{- end}}
{{- if .Refine}}

Refine or rebut the previous layer. Address the tensions directly.
{{- end}}

{{template "style" .Style}}
`+style)

var synthesis = must("synthesis", `
Question: {{.Question}}
Integrate the following layer {{.Layer}} perspectives into one coherent insight.
Reference every perspective's distinctive angle by name.
{{- range .Perspectives}}
- {{.Name}}: {{.Text}}
{{- end}}

{{template "style" .Style}}
`+style)

const style = `{{define "style"}}
{{- if eq . "detailed"}}Answer in several structured paragraphs.
{{- else if eq . "narrative"}}Answer as a short narrative.
{{- else}}Answer concisely in at most three sentences.
{{- end}}
{{- end}}`

// Persona renders the system instructions for an archetype.
func Persona(a core.Archetype) (string, error) {
	return execute(persona, a)
}

// Perspective renders the user prompt asking an archetype for its perspective.
func Perspective(d PerspectiveData) (string, error) {
	if d.Domain == "" {
		d.Domain = core.DefaultDomain
	}
	return execute(perspective, d)
}

// Synthesis renders the prompt asking a model to integrate a layer.
func Synthesis(d SynthesisData) (string, error) {
	return execute(synthesis, d)
}
