package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run a single artifact-store maintenance sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		report, err := a.orch.PerformMaintenance()
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d artifacts, added %d, pruned %d\n", report.Scanned, report.Added, report.Pruned)
		return nil
	},
}
