// Package graphing renders launch logs as charts.
package graphing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"InstrCount/pkg/exporting"
)

// Series is one per-launch counter, indexed by launch ordinal.
type Series struct {
	Name     string
	Ordinals []uint64
	Values   []float64
}

// Generator creates visualizations from a launch log.
type Generator struct {
	inputPath string
	outputDir string
	format    string
	rows      []exporting.LaunchRow
}

// NewGenerator creates a graph generator. format is "html" or "png".
func NewGenerator(inputPath, outputDir, format string) (*Generator, error) {
	if inputPath == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format = strings.ToLower(format)
	if format == "" {
		format = "html"
	}
	if format != "html" && format != "png" {
		return nil, fmt.Errorf("unsupported graph format: %s (valid: html, png)", format)
	}

	return &Generator{
		inputPath: inputPath,
		outputDir: outputDir,
		format:    format,
	}, nil
}

// Generate loads the launch log and writes the charts to the output directory.
func (g *Generator) Generate() error {
	rows, err := exporting.LoadRows(g.inputPath)
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no launches in %s", g.inputPath)
	}
	g.rows = rows

	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	series := BuildSeries(g.rows)
	switch g.format {
	case "png":
		for _, s := range series {
			path := filepath.Join(g.outputDir, sanitizeFilename(s.Name)+".png")
			if err := renderPNG(s, path); err != nil {
				log.Warnf("Failed to render %s: %v", s.Name, err)
			}
		}
	default:
		path := filepath.Join(g.outputDir, "launches.html")
		if err := renderHTML(title(g.rows), series, path); err != nil {
			return err
		}
	}

	log.Infof("Generated graphs in: %s", g.outputDir)
	return nil
}

// BuildSeries extracts the per-launch series from rows. Cooperative launches
// carry no counts and are skipped.
func BuildSeries(rows []exporting.LaunchRow) []*Series {
	sorted := append([]exporting.LaunchRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	names := []string{"instructions", "indirect", "shuffle", "ballot", "total_instructions"}
	series := make([]*Series, len(names))
	for i, n := range names {
		series[i] = &Series{Name: n}
	}

	for _, r := range sorted {
		if r.Cooperative {
			continue
		}
		values := []uint64{r.Instructions, r.Indirect, r.Shuffle, r.Ballot, r.TotalInstructions}
		for i, v := range values {
			series[i].Ordinals = append(series[i].Ordinals, r.Ordinal)
			series[i].Values = append(series[i].Values, float64(v))
		}
	}
	return series
}

func title(rows []exporting.LaunchRow) string {
	if rows[0].Session == "" {
		return "Kernel launches"
	}
	return "Kernel launches - session " + rows[0].Session
}

func formatName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' || r == ':' {
			return '_'
		}
		return r
	}, name)
}
