package config

import (
	"github.com/spf13/cobra"
)

// AddCountingFlags adds the instruction counting flags to a command.
func (c *Config) AddCountingFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint32Var(&c.InstrBegin, "instr-begin", c.InstrBegin, "First instruction index to count")
	flags.Uint32Var(&c.InstrEnd, "instr-end", c.InstrEnd, "Instruction index where counting stops (exclusive)")
	flags.BoolVar(&c.CountWarpLevel, "warp-level", c.CountWarpLevel, "Count one event per warp instead of per thread")
	flags.BoolVar(&c.ExcludePredOff, "exclude-pred-off", c.ExcludePredOff, "Do not count predicated-off lanes")
}

// AddRegionFlags adds the active region flags to a command.
func (c *Config) AddRegionFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Uint32Var(&c.StartGrid, "start-grid", c.StartGrid, "First launch ordinal to count")
	flags.Uint32Var(&c.EndGrid, "end-grid", c.EndGrid, "Launch ordinal where counting stops (exclusive)")
	flags.BoolVar(&c.ActiveFromStart, "active-from-start", c.ActiveFromStart, "Use the launch interval instead of profiler start/stop")
}

// AddOutputFlags adds diagnostics and output flags to a command.
func (c *Config) AddOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&c.MangledNames, "mangled", c.MangledNames, "Print mangled kernel names")
	flags.IntVarP(&c.Verbose, "verbose", "v", c.Verbose, "Verbosity (0 silent, 1 raw SASS, 2 decoded)")
	flags.StringVar(&c.LaunchLog, "launch-log", c.LaunchLog, "Per-launch record file (.jsonl, .parquet, .csv, .tsv)")
	flags.StringVar(&c.MetricsFile, "metrics-file", c.MetricsFile, "Prometheus textfile with the final totals")
}

// AddAllFlags adds all tool flags to a command.
func (c *Config) AddAllFlags(cmd *cobra.Command) {
	c.AddCountingFlags(cmd)
	c.AddRegionFlags(cmd)
	c.AddOutputFlags(cmd)
}
