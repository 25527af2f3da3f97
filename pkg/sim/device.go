package sim

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"golang.org/x/sync/errgroup"

	"InstrCount/pkg/host"
)

// FullWarp is the lane mask of a warp with all 32 lanes set.
const FullWarp = ^uint32(0)

// opTrap aborts the kernel when any lane executes it.
const opTrap = "BPT.TRAP"

var (
	ErrForeignInstruction = errors.New("instruction was not decoded by this device")
	ErrCounterNotWritable = errors.New("counter handle cannot be written by the device")
	ErrTrap               = errors.New("kernel executed a trap instruction")
)

// Warp describes one warp executing a kernel.
type Warp struct {
	// Active is the mask of lanes executing the kernel.
	Active uint32
	// Pred is the mask of lanes whose guard predicate is true on predicated
	// instructions.
	Pred uint32
}

// Warps returns n warps covering lanes active lanes each, all predicates true.
func Warps(n int, lanes int) []Warp {
	mask := laneMask(lanes)
	out := make([]Warp, n)
	for i := range out {
		out[i] = Warp{Active: mask, Pred: mask}
	}
	return out
}

func laneMask(lanes int) uint32 {
	if lanes >= 32 {
		return FullWarp
	}
	if lanes <= 0 {
		return 0
	}
	return uint32(1)<<uint(lanes) - 1
}

type adder interface {
	Add(n uint64)
}

// Device implements host.Context. Kernels run asynchronously; Synchronize
// waits for them.
type Device struct {
	mu      sync.RWMutex
	probes  map[*Instruction][]host.Probe
	enabled map[host.FunctionID]bool
	running sync.WaitGroup
	// fault is the first kernel error. Like a CUDA sticky error it is
	// reported by every later Synchronize.
	fault error

	// SyncErr, when set, is returned by every Synchronize call.
	SyncErr error
}

// NewDevice returns an idle device.
func NewDevice() *Device {
	return &Device{
		probes:  make(map[*Instruction][]host.Probe),
		enabled: make(map[host.FunctionID]bool),
	}
}

// RelatedFunctions returns every function fn can reach.
func (d *Device) RelatedFunctions(fn host.Function) []host.Function {
	f, ok := fn.(*Function)
	if !ok {
		return nil
	}
	var out []host.Function
	for _, g := range f.reachable() {
		out = append(out, g)
	}
	return out
}

// InsertProbe attaches p before inst.
func (d *Device) InsertProbe(inst host.Instruction, p host.Probe) error {
	in, ok := inst.(*Instruction)
	if !ok {
		return ErrForeignInstruction
	}
	if _, ok := p.Counter.(adder); !ok {
		return fmt.Errorf("%w: %T", ErrCounterNotWritable, p.Counter)
	}
	d.mu.Lock()
	d.probes[in] = append(d.probes[in], p)
	d.mu.Unlock()
	return nil
}

// EnableInstrumented selects the code variant for the next launch of fn.
func (d *Device) EnableInstrumented(fn host.Function, enabled bool) {
	d.mu.Lock()
	d.enabled[fn.ID()] = enabled
	d.mu.Unlock()
}

// Synchronize blocks until every running kernel has finished.
func (d *Device) Synchronize(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if d.SyncErr != nil {
		return d.SyncErr
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fault
}

// Probes returns the probes inserted before inst.
func (d *Device) Probes(inst host.Instruction) []host.Probe {
	in, ok := inst.(*Instruction)
	if !ok {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]host.Probe(nil), d.probes[in]...)
}

// ProbeCount returns the total number of inserted probes.
func (d *Device) ProbeCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, ps := range d.probes {
		n += len(ps)
	}
	return n
}

// Run starts fn on the device and returns immediately. Each warp walks fn's
// body followed by the bodies of the functions it calls. A warp that traps
// stops the kernel; the error is reported by Synchronize.
func (d *Device) Run(fn *Function, warps []Warp) {
	d.mu.RLock()
	enabled := d.enabled[fn.id]
	d.mu.RUnlock()

	d.running.Add(1)
	go func() {
		defer d.running.Done()
		path := append([]*Function{fn}, fn.reachable()...)

		g, ctx := errgroup.WithContext(context.Background())
		for _, w := range warps {
			w := w
			g.Go(func() error {
				return d.execWarp(ctx, path, w, enabled)
			})
		}
		if err := g.Wait(); err != nil {
			d.mu.Lock()
			if d.fault == nil {
				d.fault = fmt.Errorf("%s: %w", fn.Name(true), err)
			}
			d.mu.Unlock()
		}
	}()
}

func (d *Device) execWarp(ctx context.Context, path []*Function, w Warp, instrumented bool) error {
	for _, f := range path {
		for _, inst := range f.instrs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if instrumented {
				for _, p := range d.Probes(inst) {
					count(p, inst, w)
				}
			}
			if inst.opcode == opTrap && executes(inst, w) {
				return fmt.Errorf("%w at %s[%d]", ErrTrap, f.Name(true), inst.index)
			}
		}
	}
	return nil
}

// executes reports whether any lane of w runs inst.
func executes(inst *Instruction, w Warp) bool {
	mask := w.Active
	if inst.predicated {
		mask &= w.Pred
	}
	return mask != 0
}

// count runs the counting routine for one warp: with warp-level counting a
// warp contributes 1 when any lane passes the guard, otherwise it
// contributes the number of passing lanes.
func count(p host.Probe, inst *Instruction, w Warp) {
	mask := w.Active
	if p.Guard == host.GuardPredicate && inst.predicated {
		mask &= w.Pred
	}
	n := uint64(bits.OnesCount32(mask))
	if p.WarpLevel {
		if n == 0 {
			return
		}
		n = 1
	}
	p.Counter.(adder).Add(n)
}

// Host delivers launch and profiler callbacks to a host.Callback and runs
// the launched kernels on a Device.
type Host struct {
	Device   *Device
	Callback host.Callback
}

// NewHost connects cb to a fresh device.
func NewHost(cb host.Callback) *Host {
	return &Host{Device: NewDevice(), Callback: cb}
}

// Launch performs one kernel launch: entry callback, kernel execution,
// exit callback.
func (h *Host) Launch(fn *Function, kind host.LaunchKind, params host.LaunchParams, warps []Warp) {
	ev := host.LaunchEvent{
		Kind:     host.EventLaunch,
		Phase:    host.PhaseEntry,
		Context:  h.Device,
		Function: fn,
		Launch:   kind,
		Params:   params,
	}
	h.Callback.HandleEvent(ev)
	h.Device.Run(fn, warps)
	ev.Phase = host.PhaseExit
	h.Callback.HandleEvent(ev)
}

// ProfilerStart delivers a cuProfilerStart call.
func (h *Host) ProfilerStart() { h.profiler(host.EventProfilerStart) }

// ProfilerStop delivers a cuProfilerStop call.
func (h *Host) ProfilerStop() { h.profiler(host.EventProfilerStop) }

func (h *Host) profiler(kind host.EventKind) {
	ev := host.LaunchEvent{Kind: kind, Phase: host.PhaseEntry, Context: h.Device}
	h.Callback.HandleEvent(ev)
	ev.Phase = host.PhaseExit
	h.Callback.HandleEvent(ev)
}
