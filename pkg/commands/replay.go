package commands

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"InstrCount/pkg/device"
	"InstrCount/pkg/profiling"
	"InstrCount/pkg/sim"
)

var (
	replayThreads int
	replayDevices bool
)

// NewReplayCmd creates the replay subcommand.
func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [flags] <workload.yaml>",
		Short: "Replay a recorded workload through the interceptor",
		Long: `Load a workload description (functions as SASS text and a sequence of
launches and profiler calls) and run it on the simulated device with the
interceptor attached. Prints the same summary the tool prints at exit.

Example:
  instrcount replay --end-grid 1 workload.yaml
  instrcount replay --threads 4 --launch-log launches.parquet workload.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay,
	}

	Cfg.AddAllFlags(cmd)
	cmd.Flags().IntVar(&replayThreads, "threads", 1, "Host threads replaying the workload concurrently")
	cmd.Flags().BoolVar(&replayDevices, "devices", false, "Print the NVML GPU inventory before replaying")

	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	w, err := sim.LoadWorkload(args[0])
	if err != nil {
		return err
	}
	if _, err := w.Build(); err != nil {
		return fmt.Errorf("invalid workload: %w", err)
	}

	session, err := profiling.Start(Cfg, os.Stdout)
	if err != nil {
		return err
	}
	if replayDevices {
		profiling.PrintDevices(os.Stdout, device.NVML())
	}

	h := sim.NewHost(session.Tool())

	var g errgroup.Group
	for i := 0; i < max(replayThreads, 1); i++ {
		g.Go(func() error {
			return w.Replay(h)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	if _, err := session.Finish(os.Stdout); err != nil {
		return err
	}
	if ll := session.LaunchLog(); ll != nil {
		log.Infof("Wrote %d launch records to %s", ll.Rows(), ll.Path())
	}
	return nil
}
