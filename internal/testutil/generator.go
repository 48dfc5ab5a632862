package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
)

// Call records one Generate invocation.
type Call struct {
	Archetype string
	Prompt    string
	Issued    time.Time
	Returned  time.Time
	Err       error
}

// ScriptedGenerator is a deterministic core.Generator. Replies depend only
// on the persona and the prompt, so identical runs produce identical text.
// Per-archetype failures, hangs and delays can be configured before use.
type ScriptedGenerator struct {
	mu    sync.Mutex
	calls []Call

	reply  func(persona core.Archetype, prompt string) string
	fail   map[string]error
	hang   map[string]bool
	delays map[string]time.Duration
	delay  time.Duration
}

// NewScriptedGenerator creates a generator replying with StanceReply.
func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{
		reply:  StanceReply,
		fail:   map[string]error{},
		hang:   map[string]bool{},
		delays: map[string]time.Duration{},
	}
}

// WithReply replaces the reply function (chainable).
func (g *ScriptedGenerator) WithReply(fn func(persona core.Archetype, prompt string) string) *ScriptedGenerator {
	g.reply = fn
	return g
}

// FailFor makes every call for archetype id return err (chainable).
func (g *ScriptedGenerator) FailFor(id string, err error) *ScriptedGenerator {
	g.fail[id] = err
	return g
}

// HangFor makes every call for archetype id block until its context ends
// (chainable).
func (g *ScriptedGenerator) HangFor(id string) *ScriptedGenerator {
	g.hang[id] = true
	return g
}

// DelayFor delays replies for archetype id (chainable).
func (g *ScriptedGenerator) DelayFor(id string, d time.Duration) *ScriptedGenerator {
	g.delays[id] = d
	return g
}

// WithDelay delays every reply (chainable).
func (g *ScriptedGenerator) WithDelay(d time.Duration) *ScriptedGenerator {
	g.delay = d
	return g
}

// Generate implements core.Generator.
func (g *ScriptedGenerator) Generate(ctx context.Context, persona core.Archetype, prompt string, _ time.Duration) (string, error) {
	call := Call{Archetype: persona.ID, Prompt: prompt, Issued: time.Now()}
	idx := g.record(call)

	text, err := g.generate(ctx, persona, prompt)

	g.mu.Lock()
	g.calls[idx].Returned = time.Now()
	g.calls[idx].Err = err
	g.mu.Unlock()
	return text, err
}

func (g *ScriptedGenerator) generate(ctx context.Context, persona core.Archetype, prompt string) (string, error) {
	if g.hang[persona.ID] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	d := g.delay
	if pd, ok := g.delays[persona.ID]; ok {
		d = pd
	}
	if d > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(d):
		}
	}
	if err := g.fail[persona.ID]; err != nil {
		return "", err
	}
	return g.reply(persona, prompt), nil
}

func (g *ScriptedGenerator) record(c Call) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	return len(g.calls) - 1
}

// Calls returns a copy of every recorded call in issue order.
func (g *ScriptedGenerator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsFor counts calls for archetype id.
func (g *ScriptedGenerator) CallsFor(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Archetype == id {
			n++
		}
	}
	return n
}

// StanceReply answers affirmatively for archetypes whose imagination is at
// least their skepticism and negatively otherwise. A short digest of the
// prompt keeps successive layers distinct.
func StanceReply(persona core.Archetype, prompt string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	signal := h.Sum32() % 10000

	if persona.Skepticism > persona.Imagination {
		return fmt.Sprintf("No, %s would avoid it: the risk is high and the evidence weak. Signal %04d.", persona.Label(), signal)
	}
	return fmt.Sprintf("Yes, %s would pursue it: the opportunity is real and growth follows bold moves. Signal %04d.", persona.Label(), signal)
}

// AgreeReply makes every archetype affirm with the same vocabulary, so no
// contradictions are ever detected.
func AgreeReply(persona core.Archetype, _ string) string {
	return fmt.Sprintf("Yes, %s agrees: pursue the opportunity carefully.", persona.Label())
}
