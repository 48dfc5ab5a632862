package layer

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/prompt"
	"github.com/hupe1980/insightmesh/logging"
)

// SynthesisRequest carries the surviving perspectives of a layer in
// registry order.
type SynthesisRequest struct {
	Question     string
	Layer        int
	Style        core.OutputStyle
	Perspectives []core.Perspective
}

// Synthesizer combines at least two perspectives into one text. The result
// must reference every perspective and depend only on the request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// ExtractiveSynthesizer quotes each perspective's distinctive angle, tagged
// with its archetype name. It is deterministic and needs no model.
type ExtractiveSynthesizer struct{}

// Synthesize implements Synthesizer.
func (ExtractiveSynthesizer) Synthesize(_ context.Context, req SynthesisRequest) (string, error) {
	var b strings.Builder
	for i, p := range req.Perspectives {
		switch req.Style {
		case core.OutputDetailed:
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(p.ArchetypeName)
			b.WriteString(":\n")
			b.WriteString(p.Text)
		case core.OutputNarrative:
			if i > 0 {
				b.WriteString(" Meanwhile, ")
			}
			b.WriteString(p.ArchetypeName)
			b.WriteString(" holds that ")
			b.WriteString(lowerFirst(LeadSentence(p.Text)))
		default:
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("[")
			b.WriteString(p.ArchetypeName)
			b.WriteString("] ")
			b.WriteString(LeadSentence(p.Text))
		}
	}
	return b.String(), nil
}

const maxLeadRunes = 280

// LeadSentence returns the first sentence of text, capped at a few hundred
// runes.
func LeadSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next == len(text) {
			break
		}
		if after, _ := utf8.DecodeRuneInString(text[next:]); unicode.IsSpace(after) {
			text = text[:next]
			break
		}
	}
	if utf8.RuneCountInString(text) > maxLeadRunes {
		text = string([]rune(text)[:maxLeadRunes]) + "..."
	}
	return text
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	// Keep acronyms ("AI", "CEO") intact.
	if next, _ := utf8.DecodeRuneInString(s[size:]); unicode.IsUpper(next) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// synthesizerPersona is the voice used for model-backed synthesis.
var synthesizerPersona = core.Archetype{
	ID:            "synthesizer",
	Name:          "Synthesizer",
	Description:   "an integrator who reconciles opposing views without erasing them",
	LanguageStyle: "clear",
	Imagination:   5,
	Skepticism:    5,
	Aggression:    1,
	Emotionality:  3,
}

// ModelSynthesizerOptions configures a ModelSynthesizer.
type ModelSynthesizerOptions struct {
	Timeout  time.Duration
	Fallback Synthesizer
	Logger   logging.Logger
}

// ModelSynthesizer asks the generator to integrate the perspectives. On
// failure it falls back to extraction, and any perspective the model output
// does not name is appended so every survivor stays referenced.
type ModelSynthesizer struct {
	gen  core.Generator
	opts ModelSynthesizerOptions
}

// NewModelSynthesizer creates a ModelSynthesizer backed by gen.
func NewModelSynthesizer(gen core.Generator, optFns ...func(o *ModelSynthesizerOptions)) *ModelSynthesizer {
	opts := ModelSynthesizerOptions{
		Timeout:  30 * time.Second,
		Fallback: ExtractiveSynthesizer{},
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &ModelSynthesizer{gen: gen, opts: opts}
}

// Synthesize implements Synthesizer.
func (s *ModelSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	entries := make([]prompt.Entry, len(req.Perspectives))
	for i, p := range req.Perspectives {
		entries[i] = prompt.Entry{Name: p.ArchetypeName, Text: p.Text}
	}
	text, err := prompt.Synthesis(prompt.SynthesisData{
		Question:     req.Question,
		Layer:        req.Layer,
		Style:        req.Style,
		Perspectives: entries,
	})
	if err != nil {
		return s.opts.Fallback.Synthesize(ctx, req)
	}

	callCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	out, err := s.gen.Generate(callCtx, synthesizerPersona, text, s.opts.Timeout)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	out = strings.TrimSpace(out)
	if err != nil || out == "" {
		s.opts.Logger.Warn("Model synthesis failed, falling back", "layer", req.Layer, "error", err)
		return s.opts.Fallback.Synthesize(ctx, req)
	}

	lower := strings.ToLower(out)
	var b strings.Builder
	b.WriteString(out)
	for _, p := range req.Perspectives {
		if strings.Contains(lower, strings.ToLower(p.ArchetypeName)) {
			continue
		}
		b.WriteString("\n[")
		b.WriteString(p.ArchetypeName)
		b.WriteString("] ")
		b.WriteString(LeadSentence(p.Text))
	}
	return b.String(), nil
}
