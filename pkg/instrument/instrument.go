// Package instrument injects counting probes into every function reachable
// from a launched kernel, exactly once per function.
package instrument

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"InstrCount/pkg/classify"
	"InstrCount/pkg/counters"
	"InstrCount/pkg/host"
)

// Set records which functions already carry probes. It is not safe for
// concurrent use; the launch lock guards it.
type Set struct {
	ids map[host.FunctionID]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{ids: make(map[host.FunctionID]struct{})}
}

// Add inserts id and reports whether it was not present before.
func (s *Set) Add(id host.FunctionID) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Contains reports whether id has been instrumented.
func (s *Set) Contains(id host.FunctionID) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of instrumented functions.
func (s *Set) Len() int { return len(s.ids) }

// Options are the probe-shaping settings fixed at startup.
type Options struct {
	Range          classify.Range
	CountWarpLevel bool
	ExcludePredOff bool
	MangledNames   bool
	Verbose        int
}

// Instrumentor owns the instrumented-function set.
type Instrumentor struct {
	opts    Options
	set     *Set
	kernel  *counters.Kernel
	handles [counters.NumCategories]host.CounterHandle
	probes  uint64
}

// New creates an Instrumentor whose probes target the counters of k.
func New(opts Options, k *counters.Kernel) *Instrumentor {
	in := &Instrumentor{
		opts:   opts,
		set:    NewSet(),
		kernel: k,
	}
	for c := counters.Category(0); c < counters.NumCategories; c++ {
		in.handles[c] = k.Handle(c)
	}
	return in
}

// Set exposes the instrumented-function set.
func (in *Instrumentor) Set() *Set { return in.set }

// Probes returns the number of probes inserted so far.
func (in *Instrumentor) Probes() uint64 { return in.probes }

// InstrumentIfNeeded probes fn and every function it can reach that has not
// been seen before. Calling it again for the same function does nothing.
func (in *Instrumentor) InstrumentIfNeeded(ctx host.Context, fn host.Function) error {
	hostRelated := ctx.RelatedFunctions(fn)
	related := make([]host.Function, 0, len(hostRelated)+1)
	related = append(related, hostRelated...)
	related = append(related, fn)

	for _, f := range related {
		if !in.set.Add(f.ID()) {
			continue
		}
		if err := in.instrumentFunction(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (in *Instrumentor) instrumentFunction(ctx host.Context, fn host.Function) error {
	if in.opts.Verbose > 0 {
		log.Debugf("Inspecting function %s (id 0x%x)", fn.Name(in.opts.MangledNames), uint64(fn.ID()))
	}

	guard := host.GuardAlways
	if in.opts.ExcludePredOff {
		guard = host.GuardPredicate
	}

	for _, inst := range fn.Instructions() {
		res := classify.Classify(inst, in.opts.Range)
		if !res.Eligible {
			continue
		}

		switch in.opts.Verbose {
		case 1:
			log.Debugf("  [%d] %s", inst.Index(), inst.Text())
		case 2:
			log.Debugf("  [%d] %s", inst.Index(), inst.Decoded())
		}

		for _, c := range append(res.Categories.List(), counters.Generic) {
			p := host.Probe{
				Guard:     guard,
				WarpLevel: in.opts.CountWarpLevel,
				Counter:   in.handles[c],
			}
			if err := ctx.InsertProbe(inst, p); err != nil {
				return fmt.Errorf("failed to insert %s probe at %s[%d]: %w",
					c, fn.Name(in.opts.MangledNames), inst.Index(), err)
			}
			in.probes++
		}
	}
	return nil
}
