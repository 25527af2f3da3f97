// Package intercept is the launch interceptor: it serializes kernel launches
// around one shared counter set, instruments launched functions, and folds
// per-kernel counts into process totals.
package intercept

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"InstrCount/pkg/config"
	"InstrCount/pkg/counters"
	"InstrCount/pkg/host"
	"InstrCount/pkg/instrument"
	"InstrCount/pkg/region"
)

// DefaultCounterBase is the device address the kernel counters are mapped at.
const DefaultCounterBase = 0x7f0000000000

// FatalFunc aborts the process. It must not return in production.
type FatalFunc func(format string, args ...interface{})

// Record describes one completed launch.
type Record struct {
	Ordinal     uint64
	Function    string
	Kind        host.LaunchKind
	Params      host.LaunchParams
	Active      bool
	Cooperative bool
	Counts      counters.Values
	Totals      counters.Totals
}

// Recorder receives a Record at every launch exit, inside the launch lock.
type Recorder interface {
	Record(r Record) error
}

// Tool is the launch interceptor. Its two operations are OnEntry and OnExit;
// HandleEvent adapts phase-tagged host callbacks onto them.
type Tool struct {
	cfg *config.Config

	// mu is held from OnEntry until the matching OnExit. Everything below
	// it is only touched while mu is held.
	mu       sync.Mutex
	kernel   *counters.Kernel
	instr    *instrument.Instrumentor
	region   *region.Controller
	ordinal  uint64
	totals   counters.Totals
	pending  *Launch
	recorder Recorder

	fatal FatalFunc
}

// Option configures a Tool.
type Option func(*Tool)

// WithRecorder attaches a per-launch recorder.
func WithRecorder(r Recorder) Option {
	return func(t *Tool) {
		t.recorder = r
	}
}

// WithFatal replaces the abort handler.
func WithFatal(f FatalFunc) Option {
	return func(t *Tool) {
		t.fatal = f
	}
}

// WithCounterBase maps the kernel counters at a different device address.
func WithCounterBase(base uint64) Option {
	return func(t *Tool) {
		t.kernel = counters.NewKernel(base)
	}
}

// New creates a Tool for cfg.
func New(cfg *config.Config, opts ...Option) *Tool {
	t := &Tool{
		cfg:    cfg,
		kernel: counters.NewKernel(DefaultCounterBase),
		region: region.New(cfg.RegionMode(), uint64(cfg.StartGrid), uint64(cfg.EndGrid)),
		fatal:  log.Fatalf,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.instr = instrument.New(cfg.InstrumentOptions(), t.kernel)
	return t
}

// Launch is the ownership guard returned by OnEntry. It holds the launch
// lock until it is passed to OnExit.
type Launch struct {
	tool    *Tool
	ctx     host.Context
	fn      host.Function
	kind    host.LaunchKind
	params  host.LaunchParams
	ordinal uint64
	active  bool
	done    bool
}

// Ordinal returns the launch's 0-based sequence number.
func (l *Launch) Ordinal() uint64 { return l.ordinal }

// Active reports whether the launch runs the instrumented code.
func (l *Launch) Active() bool { return l.active }

// Kind returns the intercepted launch API.
func (l *Launch) Kind() host.LaunchKind { return l.kind }

// OnEntry blocks until no other launch is in flight, then prepares fn for
// execution. The returned Launch keeps exclusive ownership of the counters
// until OnExit.
func (t *Tool) OnEntry(ctx host.Context, fn host.Function, kind host.LaunchKind, params host.LaunchParams) *Launch {
	t.mu.Lock()

	if err := t.instr.InstrumentIfNeeded(ctx, fn); err != nil {
		t.fatal("Failed to instrument %s: %v", fn.Name(t.cfg.MangledNames), err)
	}

	active := t.region.OnLaunch(t.ordinal)
	ctx.EnableInstrumented(fn, active)
	t.kernel.Reset()

	l := &Launch{
		tool:    t,
		ctx:     ctx,
		fn:      fn,
		kind:    kind,
		params:  params,
		ordinal: t.ordinal,
		active:  active,
	}
	t.ordinal++
	return l
}

// OnExit waits for the launch's device work to finish, folds its counts into
// the totals and releases the launch lock.
func (t *Tool) OnExit(l *Launch) {
	if l == nil || l.tool != t || l.done {
		t.fatal("OnExit called without a matching OnEntry")
		return
	}
	l.done = true
	defer t.mu.Unlock()

	if err := l.ctx.Synchronize(context.Background()); err != nil {
		t.fatal("Device synchronization failed after %s: %v", l.kind, err)
	}

	rec := Record{
		Ordinal:     l.ordinal,
		Function:    l.fn.Name(t.cfg.MangledNames),
		Kind:        l.kind,
		Params:      l.params,
		Active:      l.active,
		Cooperative: l.kind.Cooperative(),
	}

	if l.kind.Cooperative() {
		t.totals.Cooperative++
	} else {
		rec.Counts = t.kernel.Read()
		t.totals.Fold(rec.Counts)
		log.Debugf("kernel %d - %s - #thread-blocks %d, kernel instructions %d, total instructions %d",
			l.ordinal, rec.Function, l.params.Grid.Size(), rec.Counts[counters.Generic], t.totals.Instructions)
	}
	rec.Totals = t.totals

	if t.recorder != nil {
		if err := t.recorder.Record(rec); err != nil {
			log.Warnf("Failed to record launch %d: %v", l.ordinal, err)
		}
	}
}

// HandleEvent implements host.Callback. Launch entries and exits arrive in
// pairs on the launching thread; profiler start and stop take effect on
// their exit phase.
func (t *Tool) HandleEvent(ev host.LaunchEvent) {
	switch ev.Kind {
	case host.EventLaunch:
		if ev.Phase == host.PhaseEntry {
			l := t.OnEntry(ev.Context, ev.Function, ev.Launch, ev.Params)
			t.pending = l
			log.Debugf("kernel %d - %s entered via %s, instrumented=%t",
				l.Ordinal(), ev.Function.Name(t.cfg.MangledNames), l.Kind(), l.Active())
			return
		}
		l := t.pending
		t.pending = nil
		t.OnExit(l)
	case host.EventProfilerStart:
		if ev.Phase == host.PhaseExit {
			t.signal(t.region.Start)
		}
	case host.EventProfilerStop:
		if ev.Phase == host.PhaseExit {
			t.signal(t.region.Stop)
		}
	}
}

func (t *Tool) signal(apply func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	apply()
	log.Debugf("Profiler region (%s mode) active=%t", t.region.Mode(), t.region.Active())
}

// Totals returns a copy of the running totals. It waits for any launch in
// flight to exit.
func (t *Tool) Totals() counters.Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Launches returns the number of launches seen so far.
func (t *Tool) Launches() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ordinal
}

// Instrumented returns the number of functions carrying probes and the
// number of probes inserted.
func (t *Tool) Instrumented() (functions int, probes uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instr.Set().Len(), t.instr.Probes()
}

// Kernel returns the device counter set probes write to.
func (t *Tool) Kernel() *counters.Kernel { return t.kernel }

func (t *Tool) String() string {
	return fmt.Sprintf("instrcount(%s region, %d launches)", t.region.Mode(), t.Launches())
}
