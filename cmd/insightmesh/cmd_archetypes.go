package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var archetypesCmd = &cobra.Command{
	Use:   "archetypes",
	Short: "List the archetypes available to runs",
	RunE:  runArchetypes,
}

func runArchetypes(cmd *cobra.Command, _ []string) error {
	registry, err := loadRegistry(appCfg.ArchetypePack)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tIMAG\tSKEP\tAGGR\tEMOT\tDESCRIPTION")
	for _, a := range registry.List() {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.0f\t%.0f\t%.0f\t%s\n",
			a.ID, a.Name, a.Imagination, a.Skepticism, a.Aggression, a.Emotionality, a.Description)
	}
	return tw.Flush()
}
