package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vigil/internal/daemon"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the watch-decide-act loop in the foreground",
	Long: `Starts the daemon: the filesystem watcher, git poller, decision
engine, and any enabled integration pollers. Runs until interrupted.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	d, err := daemon.New(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
	}()

	fmt.Printf("vigil watching %s (provider=%s, agent=%s)\n",
		cfg.Daemon.Root, cfg.LLM.Provider, cfg.Execution.Agent)

	return d.Run(ctx)
}
