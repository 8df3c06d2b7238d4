package main

import (
	"fmt"
	"time"

	"vigil/internal/decision"
	"vigil/internal/perception"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <path>...",
	Short: "Run the decision pipeline once for the given paths",
	Long: `Builds a synthetic observation from the given paths, matches it
against the action templates, and asks the evaluator for a verdict on each
match. Nothing is executed and nothing is stored; this is a dry run of the
pipeline for debugging action templates and prompts.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	client, err := perception.NewClient(cfg)
	if err != nil {
		return err
	}

	actions, err := decision.LoadActions(cfg.Actions.File)
	if err != nil {
		return err
	}

	// Zero cooldown so a dry run never reports "in cooldown".
	matcher := decision.NewMatcher(actions, time.Nanosecond)
	evaluator := decision.NewEvaluator(client)

	// One observation per category, mirroring the daemon's batching.
	byCategory := make(map[decision.Category][]string)
	for _, path := range args {
		cat := decision.Categorize(path)
		byCategory[cat] = append(byCategory[cat], path)
		fmt.Printf("%-40s -> %s\n", path, cat)
	}

	for cat, paths := range byCategory {
		obs := decision.Observation{
			ID:       uuid.NewString(),
			Time:     time.Now(),
			Source:   "file",
			Category: cat,
			Paths:    paths,
			Summary:  fmt.Sprintf("%d %s file(s) changed", len(paths), cat),
		}

		matched := matcher.Match(obs)
		if len(matched) == 0 {
			fmt.Printf("\n[%s] no matching actions\n", cat)
			continue
		}

		for _, action := range matched {
			fmt.Printf("\n[%s] evaluating %s...\n", cat, action.Name)
			verdict, _, err := evaluator.Evaluate(cmd.Context(), action, obs, nil)
			if err != nil {
				fmt.Printf("  error: %v\n", err)
				continue
			}
			approved := verdict.ShouldExecute && verdict.Confidence >= action.Threshold
			fmt.Printf("  should_execute=%v confidence=%.2f (threshold %.2f) approved=%v\n",
				verdict.ShouldExecute, verdict.Confidence, action.Threshold, approved)
			fmt.Printf("  reasoning: %s\n", verdict.Reasoning)
		}
	}
	return nil
}
