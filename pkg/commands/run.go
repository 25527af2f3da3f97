package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"InstrCount/pkg/batch"
	"InstrCount/pkg/config"
)

var runOpts struct {
	tool          string
	dir           string
	maxTries      int
	successMarker string
}

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a program with the tool injected",
		Long: `Run a CUDA program with the tool library injected through
CUDA_INJECTION64_PATH. Output goes to <dir>/nvbit_result.txt and to the
terminal. Runs that crash (segmentation fault, abort) are retried.

Example:
  instrcount run --tool ./instrcount.so -- ./vectoradd 4096
  instrcount run --exclude-pred-off --warp-level=false -- ./bfs graph1k.txt`,
		RunE: runRun,
	}

	Cfg.AddAllFlags(cmd)
	flags := cmd.Flags()
	flags.StringVar(&runOpts.tool, "tool", os.Getenv(config.EnvInjectionPath), "Tool library to inject")
	flags.StringVar(&runOpts.dir, "dir", ".", "Working directory and result location")
	flags.IntVar(&runOpts.maxTries, "max-tries", batch.DefaultMaxTries, "Attempts before giving up on a crashing run")
	flags.StringVar(&runOpts.successMarker, "success-marker", batch.DefaultSuccessMarker, "Text that must appear in the output of a good run (empty disables)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command specified\nUsage: instrcount run [flags] -- <command> [args...]")
	}
	if runOpts.tool == "" {
		return fmt.Errorf("no tool library: pass --tool or set %s", config.EnvInjectionPath)
	}

	r := batch.NewRunner(runOpts.tool, Cfg)
	r.MaxTries = runOpts.maxTries
	r.SuccessMarker = runOpts.successMarker
	r.Rerun = true
	r.Stdout = os.Stdout

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := batch.Job{Name: args[0], Dir: runOpts.dir, Command: args}
	log.Infof("Running %v with %s", args, runOpts.tool)
	res := r.Run(ctx, job)
	if !res.OK {
		return fmt.Errorf("run failed after %d attempt(s): %s", res.Attempts, res.Reason)
	}
	log.Infof("Run completed in %d attempt(s), output in %s", res.Attempts, r.ResultPath(job))
	return nil
}
