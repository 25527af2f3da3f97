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
)

var batchOpts struct {
	procs int
	rerun bool
}

// NewBatchCmd creates the batch subcommand.
func NewBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [flags] <suite.yaml>",
		Short: "Run a benchmark suite with the tool injected",
		Long: `Run every benchmark dataset listed in a suite file with the tool
injected. Each run writes to <result_dir>/<benchmark>/<subdir>. Runs whose
output is already clean are skipped unless --rerun is given; crashed runs
are retried up to max_tries times. Failed runs are listed at the end.`,
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}

	Cfg.AddAllFlags(cmd)
	cmd.Flags().IntVar(&batchOpts.procs, "proc", 1, "Number of runs executing at once")
	cmd.Flags().BoolVar(&batchOpts.rerun, "rerun", false, "Rerun benchmarks that already have a clean result")

	return cmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	suite, err := batch.LoadSuite(args[0])
	if err != nil {
		return err
	}
	jobs, err := suite.Jobs()
	if err != nil {
		return fmt.Errorf("invalid suite: %w", err)
	}

	r := batch.NewRunner(suite.Tool, Cfg)
	if suite.MaxTries > 0 {
		r.MaxTries = suite.MaxTries
	}
	if suite.SuccessMarker != nil {
		r.SuccessMarker = *suite.SuccessMarker
	}
	r.Rerun = batchOpts.rerun

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Running %d jobs (%d at a time)", len(jobs), max(batchOpts.procs, 1))
	results, runErr := batch.RunAll(ctx, r, jobs, batchOpts.procs)
	if runErr != nil {
		log.Warnf("Batch interrupted: %v", runErr)
	}

	failed := batch.Failed(results)
	for _, f := range failed {
		log.Errorf("trace generation for %s failed: %s", f.Job.Dir, f.Reason)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d runs failed", len(failed), len(results))
	}
	log.Infof("All %d runs succeeded", len(results))
	return nil
}
