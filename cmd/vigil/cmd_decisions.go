package main

import (
	"fmt"
	"strings"

	"vigil/internal/store"

	"github.com/spf13/cobra"
)

var (
	decisionsLimit  int
	decisionsAction string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List recent decisions",
	RunE:  runDecisions,
}

var whyCmd = &cobra.Command{
	Use:   "why <decision-id>",
	Short: "Explain a decision: verdict, reasoning, prompt, executions",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhy,
}

func init() {
	decisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 20, "max decisions to show")
	decisionsCmd.Flags().StringVarP(&decisionsAction, "action", "a", "", "filter by action name")
}

func runDecisions(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	var records []store.DecisionRecord
	if decisionsAction != "" {
		records, err = s.DecisionsByAction(decisionsAction, decisionsLimit)
	} else {
		records, err = s.RecentDecisions(decisionsLimit)
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("no decisions recorded")
		return nil
	}

	for _, r := range records {
		marker := " "
		switch {
		case r.Executed:
			marker = "*"
		case r.ShouldExecute:
			marker = "+"
		}
		fmt.Printf("%s %s  %-20s  %-12s  conf=%.2f  %s\n",
			marker, r.Time.Format("01-02 15:04"), r.Action, r.Outcome, r.Confidence, shortID(r.ID))
	}
	fmt.Println("\n(* executed, + approved but not executed; `vigil why <id>` for detail)")
	return nil
}

func runWhy(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.GetDecision(args[0])
	if err != nil {
		return fmt.Errorf("decision %s not found", args[0])
	}

	fmt.Printf("decision:  %s\n", r.ID)
	fmt.Printf("time:      %s\n", r.Time.Format("2006-01-02 15:04:05"))
	fmt.Printf("action:    %s\n", r.Action)
	fmt.Printf("outcome:   %s\n", r.Outcome)
	fmt.Printf("verdict:   should_execute=%v confidence=%.2f\n", r.ShouldExecute, r.Confidence)
	if r.Reasoning != "" {
		fmt.Printf("reasoning: %s\n", r.Reasoning)
	}
	if r.Error != "" {
		fmt.Printf("error:     %s\n", r.Error)
	}

	if obs, err := s.GetObservation(r.ObservationID); err == nil {
		fmt.Printf("\ntriggered by [%s] %s\n", obs.Source, obs.Summary)
		for _, p := range obs.Paths {
			fmt.Printf("  - %s\n", p)
		}
	}

	if r.Prompt != "" {
		fmt.Printf("\nprompt:\n%s\n", indent(r.Prompt, "  "))
	}

	execs, err := s.ExecutionsForDecision(r.ID)
	if err != nil {
		return err
	}
	for _, e := range execs {
		fmt.Printf("\nexecution #%d: %s\n", e.ID, e.Command)
		fmt.Printf("  exit=%d duration=%s killed=%v\n", e.ExitCode, e.Duration, e.Killed)
		if e.KillReason != "" {
			fmt.Printf("  kill reason: %s\n", e.KillReason)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
