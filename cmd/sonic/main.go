// Package main is the entry point for the sonic word-count runner.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	distribute "github.com/tiemma/sonic-distribute"
	"github.com/tiemma/sonic-distribute/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sonic",
	Short: "Sonic - master/worker map-reduce over local processes",
	Long: `Sonic spawns a pool of workers from its own binary, feeds them work items
from a driver and reduces the collected results once every worker has gone idle.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sonic version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, newWordCountCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		if distribute.IsCoordinator() {
			fmt.Fprintln(os.Stderr, "\nInterrupt received, stopping workers...")
		}
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error(distribute.WorkerName(), "%v", err)
		os.Exit(1)
	}
}
