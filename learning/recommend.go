package learning

import (
	"context"
	"fmt"

	"github.com/hupe1980/insightmesh/core"
)

// ArchetypeLookup resolves archetype ids to detached archetypes, e.g.
// (*archetype.Registry).Snapshot.
type ArchetypeLookup func(ids ...string) ([]core.Archetype, error)

// Recommend builds a configuration template (without a question) from the
// best ranked configuration of domain, falling back to the default domain.
// It reports false when no history exists.
func Recommend(ctx context.Context, store core.LearningStore, domain string, lookup ArchetypeLookup) (core.RunConfiguration, bool, error) {
	domains := []string{domain}
	if domain != core.DefaultDomain {
		domains = append(domains, core.DefaultDomain)
	}
	for _, d := range domains {
		recs, err := store.QueryBestConfigurations(ctx, d, 1)
		if err != nil {
			return core.RunConfiguration{}, false, err
		}
		if len(recs) == 0 {
			continue
		}
		best := recs[0]
		archetypes, err := lookup(best.ArchetypeIDs...)
		if err != nil {
			return core.RunConfiguration{}, false, fmt.Errorf("resolve recommended archetypes: %w", err)
		}
		return core.RunConfiguration{
			Depth:        best.Depth,
			Circuit:      best.Circuit,
			EnhancedMode: best.EnhancedMode,
			Archetypes:   archetypes,
			Domain:       domain,
		}, true, nil
	}
	return core.RunConfiguration{}, false, nil
}
