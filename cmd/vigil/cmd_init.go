package main

import (
	"fmt"
	"os"
	"path/filepath"

	"vigil/internal/config"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the .vigil directory and a default config",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	vigilDir := filepath.Join(rootDir, ".vigil")
	if err := os.MkdirAll(filepath.Join(vigilDir, "logs"), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", vigilDir, err)
	}

	path := config.DefaultConfigPath(rootDir)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("config already exists at %s\n", path)
		return nil
	}

	defaults := config.DefaultConfig()
	defaults.Daemon.Root = rootDir
	if err := defaults.Save(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("initialized %s\n", vigilDir)
	fmt.Printf("config written to %s\n", path)
	fmt.Println("next: review the config, then run `vigil daemon`")
	return nil
}
