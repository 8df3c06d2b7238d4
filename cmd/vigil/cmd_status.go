package main

import (
	"fmt"

	"vigil/internal/store"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show audit-trail counters",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.GetStats()
	if err != nil {
		return err
	}

	fmt.Printf("database:          %s\n", cfg.Store.DatabasePath)
	fmt.Printf("observations:      %d\n", stats.Observations)
	fmt.Printf("decisions:         %d\n", stats.Decisions)
	fmt.Printf("executions:        %d\n", stats.Executions)
	fmt.Printf("open goals:        %d\n", stats.OpenGoals)
	fmt.Printf("open tasks:        %d\n", stats.OpenTasks)
	fmt.Printf("self observations: %d\n", stats.SelfObservations)
	if !stats.LastDecisionAt.IsZero() {
		fmt.Printf("last decision:     %s\n", stats.LastDecisionAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
