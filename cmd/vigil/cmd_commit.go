package main

import (
	"fmt"

	"vigil/internal/gitcommit"
	"vigil/internal/perception"

	"github.com/spf13/cobra"
)

var commitApply bool

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Generate a commit message for the staged diff",
	Long: `Reads the staged diff, asks the configured LLM for a conventional
commit message, and prints it. With --apply, runs git commit with the
generated message.`,
	RunE: runCommit,
}

func init() {
	commitCmd.Flags().BoolVar(&commitApply, "apply", false, "commit with the generated message")
}

func runCommit(cmd *cobra.Command, args []string) error {
	client, err := perception.NewClient(cfg)
	if err != nil {
		return err
	}

	message, err := gitcommit.GenerateMessage(cmd.Context(), client, cfg.Daemon.Root)
	if err != nil {
		return err
	}

	fmt.Println(message)

	if commitApply {
		if err := gitcommit.Commit(cmd.Context(), cfg.Daemon.Root, message); err != nil {
			return err
		}
		fmt.Println("\ncommitted.")
	}
	return nil
}
