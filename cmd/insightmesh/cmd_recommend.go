package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/insightmesh/core"
)

var recommendFlags struct {
	domain string
	limit  int
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show the best configurations learned from past runs",
	RunE:  runRecommend,
}

func init() {
	f := recommendCmd.Flags()
	f.StringVar(&recommendFlags.domain, "domain", core.DefaultDomain, "Learning domain")
	f.IntVar(&recommendFlags.limit, "limit", 5, "Maximum number of configurations")
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	recs, err := a.mesh.Store().QueryBestConfigurations(ctx, recommendFlags.domain, recommendFlags.limit)
	if err != nil {
		return fmt.Errorf("query learning store: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintf(out, "No runs recorded for domain %q yet.\n", recommendFlags.domain)
		fmt.Fprintf(out, "Run 'insightmesh run --db <path>' to build history.\n")
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}
