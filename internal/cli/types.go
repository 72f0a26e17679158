package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type typeRow struct {
	Ref     string `json:"ref"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Kind    string `json:"kind"`
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the loaded type models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadRegistry()
			if err != nil {
				return err
			}
			models := reg.Models()
			if a.flags.jsonMode {
				rows := make([]typeRow, 0, len(models))
				for _, m := range models {
					rows = append(rows, typeRow{Ref: m.Ref().String(), Name: m.Name, Version: m.Version, Kind: string(m.Type)})
				}
				return a.print(cmd, rows)
			}
			for _, m := range models {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tv%s\t%s\n", m.Ref(), m.Name, m.Version, m.Type)
			}
			return nil
		},
	}
}
