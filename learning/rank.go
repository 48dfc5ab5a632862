package learning

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/insightmesh/core"
)

// configKey identifies the configuration shape a record was produced with.
func configKey(cfg core.RunConfiguration) string {
	return strings.Join([]string{
		string(cfg.Circuit),
		strconv.Itoa(cfg.Depth),
		strconv.FormatBool(cfg.EnhancedMode),
		strings.Join(cfg.ArchetypeIDs(), ","),
	}, "|")
}

// Rank aggregates records by configuration shape and orders them by mean
// overall score, then by number of runs. limit <= 0 returns every group.
func Rank(records []core.LearningRecord, limit int) []core.Recommendation {
	type agg struct {
		rec core.Recommendation
		sum float64
		key string
	}
	groups := map[string]*agg{}
	var order []*agg
	for _, r := range records {
		key := configKey(r.Config)
		g, ok := groups[key]
		if !ok {
			g = &agg{key: key, rec: core.Recommendation{
				Circuit:      r.Config.Circuit,
				Depth:        r.Config.Depth,
				EnhancedMode: r.Config.EnhancedMode,
				ArchetypeIDs: r.Config.ArchetypeIDs(),
			}}
			groups[key] = g
			order = append(order, g)
		}
		g.rec.Runs++
		g.sum += r.Quality.Overall
		if g.rec.Runs == 1 || r.Quality.Overall > g.rec.BestOverall {
			g.rec.BestOverall = r.Quality.Overall
		}
	}

	for _, g := range order {
		g.rec.MeanOverall = roundScore(g.sum / float64(g.rec.Runs))
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].rec, order[j].rec
		if a.MeanOverall != b.MeanOverall {
			return a.MeanOverall > b.MeanOverall
		}
		if a.Runs != b.Runs {
			return a.Runs > b.Runs
		}
		return order[i].key < order[j].key
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	out := make([]core.Recommendation, len(order))
	for i, g := range order {
		out[i] = g.rec
	}
	return out
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
