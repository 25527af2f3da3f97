// Package commands provides CLI command implementations.
package commands

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"InstrCount/pkg/config"
)

// Cfg is the shared configuration instance. Environment variables provide
// the defaults; flags override them.
var Cfg = config.FromEnv()

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "instrcount",
		Short: "GPU instruction counting tool",
		Long: `instrcount counts executed GPU instructions (total, indirect calls,
shuffles, ballots) and cooperative kernel launches, per warp or per thread.

Commands:
  run      Run a program with the tool injected, retrying crashed runs
  batch    Run a suite of benchmarks with the tool injected
  replay   Replay a recorded workload through the interceptor
  graph    Render a launch log as charts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewRunCmd(),
		NewBatchCmd(),
		NewReplayCmd(),
		NewGraphCmd(),
	)

	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
