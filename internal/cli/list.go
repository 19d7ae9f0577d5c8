package cli

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/seantiz/savina/internal/workload"
	"github.com/seantiz/savina/internal/workload/builtin"
)

// NewListCmd returns the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available benchmarks and their default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			plain, err := cc.Flags().GetBool("plain")
			if err != nil {
				return err
			}

			out := cc.OutOrStdout()
			descs := builtin.NewRegistry().List()
			if plain {
				for _, d := range descs {
					writeLine(out, "%s\t%s\t%s\t%s", d.Key, d.Name, d.Paradigm, formatParams(d.Defaults))
				}
				return nil
			}

			rows := make([][]string, len(descs))
			for i, d := range descs {
				rows[i] = []string{d.Key, d.Name, d.Paradigm, formatParams(d.Defaults)}
			}
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				Headers("key", "name", "paradigm", "defaults").
				Rows(rows...)
			writeLine(out, "%s", t.Render())
			return nil
		},
	}

	cmd.Flags().Bool("plain", false, "Print tab separated lines instead of a table")

	return cmd
}

// formatParams renders params as k=v pairs ordered by key.
func formatParams(p workload.Params) string {
	keys := p.Keys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatUint(p[k], 10)
	}
	return strings.Join(parts, " ")
}
