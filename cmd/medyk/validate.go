package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Check a catalog file",
		Long:  `Loads a catalog and checks it; without an argument the embedded catalog is checked.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog ok (%s): %d symptoms, %d affirmations, %d diseases\n",
				cat.Language, len(cat.Symptoms), len(cat.Affirmations), len(cat.Diseases))
			return nil
		},
	}
}
