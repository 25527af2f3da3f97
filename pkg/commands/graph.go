package commands

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"InstrCount/pkg/graphing"
)

var graphOpts struct {
	output string
	format string
}

// NewGraphCmd creates the graph subcommand.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [flags] <launch-log>",
		Short: "Render a launch log as charts",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraph,
	}

	cmd.Flags().StringVarP(&graphOpts.output, "output", "o", "", "Output directory (default <input>_graphs)")
	cmd.Flags().StringVar(&graphOpts.format, "format", "html", "Graph format (html, png)")

	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	input := args[0]
	outputDir := graphOpts.output
	if outputDir == "" {
		base := filepath.Base(input)
		outputDir = strings.TrimSuffix(base, filepath.Ext(base)) + "_graphs"
	}

	log.Infof("Generating graphs from %s", input)
	gen, err := graphing.NewGenerator(input, outputDir, graphOpts.format)
	if err != nil {
		return err
	}
	return gen.Generate()
}
