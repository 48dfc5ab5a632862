package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/insightmesh/core"
)

var runFlags struct {
	depth      int
	circuit    string
	archetypes []string
	enhanced   bool
	style      string
	domain     string
	recommend  bool
	jsonOut    bool
	quiet      bool
}

var runCmd = &cobra.Command{
	Use:   "run <question>",
	Short: "Run a question through an archetype circuit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.depth, "depth", 0, "Number of layers (1-10); default from config")
	f.StringVar(&runFlags.circuit, "circuit", "", "sequential, parallel, recursive or hybrid; default from config")
	f.StringSliceVar(&runFlags.archetypes, "archetypes", nil, "Archetype ids to activate (default: config or all)")
	f.BoolVar(&runFlags.enhanced, "enhanced", false, "Synthesise layers with the model")
	f.StringVar(&runFlags.style, "style", "", "concise, detailed or narrative")
	f.StringVar(&runFlags.domain, "domain", "", "Learning domain of the run")
	f.BoolVar(&runFlags.recommend, "recommend", false, "Start from the best configuration learned for the domain")
	f.BoolVar(&runFlags.jsonOut, "json", false, "Print the full result as JSON")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "Do not print progress")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	cfg, err := buildRunConfig(ctx, a, strings.Join(args, " "), cmd)
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	res, err := a.mesh.RunWithProgress(ctx, cfg, func(ev core.ProgressEvent) {
		if !runFlags.quiet {
			printProgress(errOut, ev)
		}
	})
	if err != nil {
		return err
	}

	if runFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(out, res)
	return nil
}

// buildRunConfig layers explicit flags over a recommendation (when asked)
// over the configured defaults.
func buildRunConfig(ctx context.Context, a *app, question string, cmd *cobra.Command) (core.RunConfiguration, error) {
	cfg := appCfg.RunDefaults(question)
	if runFlags.domain != "" {
		cfg.Domain = runFlags.domain
	}

	ids := runFlags.archetypes
	if len(ids) == 0 {
		ids = appCfg.Archetypes
	}
	archetypes, err := a.mesh.Archetypes().Snapshot(ids...)
	if err != nil {
		return core.RunConfiguration{}, &core.ValidationError{Field: "archetypes", Reason: err.Error()}
	}
	cfg.Archetypes = archetypes

	if runFlags.recommend {
		rec, ok, err := a.mesh.Recommend(ctx, question, cfg.Domain)
		if err != nil {
			return core.RunConfiguration{}, fmt.Errorf("recommend: %w", err)
		}
		if ok {
			rec.OutputStyle = cfg.OutputStyle
			cfg = rec
		} else {
			a.logger.Info("No learned configuration yet, using defaults", "domain", cfg.Domain)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("depth") {
		cfg.Depth = runFlags.depth
	}
	if flags.Changed("circuit") {
		ct, err := core.ParseCircuitType(runFlags.circuit)
		if err != nil {
			return core.RunConfiguration{}, err
		}
		cfg.Circuit = ct
	}
	if flags.Changed("enhanced") {
		cfg.EnhancedMode = runFlags.enhanced
	}
	if flags.Changed("style") {
		cfg.OutputStyle = core.OutputStyle(runFlags.style)
	}
	return cfg, nil
}

func printProgress(w io.Writer, ev core.ProgressEvent) {
	line := fmt.Sprintf("[%5.1f%%] layer %d/%d %-12s", ev.Percent, ev.Layer, ev.TotalLayers, ev.Phase)
	if ev.Archetype != "" {
		line += fmt.Sprintf(" %s (%d/%d)", ev.Archetype, ev.Chunk.Current, ev.Chunk.Total)
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	fmt.Fprintln(w, line)
}

func printResult(w io.Writer, res *core.RunResult) {
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	fmt.Fprintf(w, "Status:   %s (%d of %d layers, %s circuit)\n", res.Status, res.LayersProcessed, res.RequestedDepth, res.Circuit)
	if res.Note != "" {
		fmt.Fprintf(w, "Note:     %s\n", res.Note)
	}
	fmt.Fprintf(w, "Tension:  %d contradictions, breakthrough=%t (%.0f%%)\n",
		res.Tension.Contradictions, res.Tension.Breakthrough, res.Tension.Confidence)
	q := res.Quality
	fmt.Fprintf(w, "Quality:  overall %.2f | confidence %.2f | novelty %.2f | breakthrough %.2f | integrity %.2f\n",
		q.Overall, q.Confidence, q.Novelty, q.BreakthroughPotential, q.Integrity)
	fmt.Fprintf(w, "\n%s\n", res.Synthesis)
}
