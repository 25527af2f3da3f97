// Package report prints the end-of-process summary.
package report

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"InstrCount/pkg/counters"
)

// Reporter renders the final totals.
type Reporter struct {
	WarpLevel bool
}

// New returns a Reporter labelling instruction counts as warp or thread level.
func New(warpLevel bool) *Reporter {
	return &Reporter{WarpLevel: warpLevel}
}

// Print writes the five summary lines in fixed order.
func (r *Reporter) Print(w io.Writer, t counters.Totals) error {
	level := "thread"
	if r.WarpLevel {
		level = "warp"
	}
	_, err := fmt.Fprintf(w,
		"Total indirect function calls: %d\n"+
			"Total cooperative kernel launches: %d\n"+
			"Total app %s-level instructions: %d\n"+
			"Total shuffle instructions: %d\n"+
			"Total ballot instructions: %d\n",
		t.Indirect, t.Cooperative, level, t.Instructions, t.Shuffle, t.Ballot)
	return err
}

// Registry builds a Prometheus registry holding the totals as gauges.
func (r *Reporter) Registry(t counters.Totals) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	level := "thread"
	if r.WarpLevel {
		level = "warp"
	}

	instr := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "instrcount",
		Name:      "instructions_total",
		Help:      "Executed instructions by category",
	}, []string{"category", "level"})
	instr.WithLabelValues(counters.Generic.String(), level).Set(float64(t.Instructions))
	instr.WithLabelValues(counters.Indirect.String(), level).Set(float64(t.Indirect))
	instr.WithLabelValues(counters.Shuffle.String(), level).Set(float64(t.Shuffle))
	instr.WithLabelValues(counters.Ballot.String(), level).Set(float64(t.Ballot))

	coop := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "instrcount",
		Name:      "cooperative_launches_total",
		Help:      "Cooperative kernel launches",
	})
	coop.Set(float64(t.Cooperative))

	reg.MustRegister(instr, coop)
	return reg
}

// WriteTextfile writes the totals in the Prometheus text format, for the
// node exporter textfile collector.
func (r *Reporter) WriteTextfile(path string, t counters.Totals) error {
	if err := prometheus.WriteToTextfile(path, r.Registry(t)); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
