package archetype

import "github.com/hupe1980/insightmesh/core"

// Identifiers of the built-in archetypes.
const (
	Visionary  = "visionary"
	Skeptic    = "skeptic"
	Pragmatist = "pragmatist"
	Empath     = "empath"
	Contrarian = "contrarian"
	Historian  = "historian"
)

// Defaults returns the built-in archetype set in registry order.
func Defaults() []core.Archetype {
	return []core.Archetype{
		{
			ID:            Visionary,
			Name:          "Visionary",
			Description:   "Looks past current constraints toward what could become possible.",
			LanguageStyle: "expansive",
			Imagination:   9,
			Skepticism:    2,
			Aggression:    4,
			Emotionality:  6,
		},
		{
			ID:            Skeptic,
			Name:          "Skeptic",
			Description:   "Questions assumptions and demands evidence before accepting a claim.",
			LanguageStyle: "analytical",
			Imagination:   3,
			Skepticism:    9,
			Aggression:    5,
			Emotionality:  2,
		},
		{
			ID:            Pragmatist,
			Name:          "Pragmatist",
			Description:   "Weighs cost, feasibility and the next concrete step.",
			LanguageStyle: "plain",
			Imagination:   4,
			Skepticism:    6,
			Aggression:    3,
			Emotionality:  3,
		},
		{
			ID:            Empath,
			Name:          "Empath",
			Description:   "Centres the people affected and how the decision will feel to them.",
			LanguageStyle: "warm",
			Imagination:   6,
			Skepticism:    3,
			Aggression:    1,
			Emotionality:  9,
		},
		{
			ID:            Contrarian,
			Name:          "Contrarian",
			Description:   "Argues the opposite of the emerging consensus to stress-test it.",
			LanguageStyle: "provocative",
			Imagination:   7,
			Skepticism:    7,
			Aggression:    8,
			Emotionality:  4,
			Constraint:    "Always challenge the most popular position in the discussion.",
		},
		{
			ID:            Historian,
			Name:          "Historian",
			Description:   "Draws on precedent and how similar situations played out before.",
			LanguageStyle: "measured",
			Imagination:   4,
			Skepticism:    6,
			Aggression:    2,
			Emotionality:  4,
		},
	}
}
