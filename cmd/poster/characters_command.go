package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"postergen/internal/domain"
)

func newCharactersCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "characters",
		Short: "List selectable characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items := domain.Characters()
			if asJSON {
				return writeJSON(cmd, items)
			}
			rows := make([][]string, 0, len(items))
			for _, c := range items {
				label := c.Label
				if c.Value == domain.DefaultCharacter {
					label += " (default)"
				}
				rows = append(rows, []string{c.Key, label, c.Description})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Character", "Description"}, rows))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
