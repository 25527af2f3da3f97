// Package host describes the services the instrumentation core consumes from
// the runtime that intercepts kernel launches. Nothing here is implemented by
// the core; pkg/sim provides an in-process implementation for tests and replay.
package host

import "context"

// FunctionID is a stable, hashable identity for a compiled GPU function.
type FunctionID uint64

// Function is a compiled GPU function as seen by the host runtime.
type Function interface {
	ID() FunctionID
	// Name returns the mangled symbol when mangled is true, the demangled
	// form otherwise.
	Name(mangled bool) string
	Instructions() []Instruction
}

// Instruction is one decoded SASS instruction of a Function.
type Instruction interface {
	// Index is the static position of the instruction inside its function.
	Index() uint32
	// Opcode is the full opcode with modifiers, e.g. "CALL.ABS" or "VOTE.BALL".
	Opcode() string
	// OpcodeShort is the opcode without modifiers, e.g. "SHFL".
	OpcodeShort() string
	// Text is the raw SASS text including operands.
	Text() string
	// Decoded is the decoded operand form printed at verbose level 2.
	Decoded() string
}

// Guard selects the condition a probe is evaluated under.
type Guard int

const (
	// GuardAlways makes the probe count every active lane.
	GuardAlways Guard = iota
	// GuardPredicate passes the instruction's runtime predicate, so lanes
	// that are predicated off are not counted.
	GuardPredicate
)

func (g Guard) String() string {
	if g == GuardPredicate {
		return "pred"
	}
	return "true"
}

// CounterHandle is the device address of a 64-bit counter a probe increments.
type CounterHandle interface {
	Address() uint64
}

// Probe is a request to call the counting routine immediately before an
// instruction. Arguments are passed to the routine in field order.
type Probe struct {
	Guard     Guard
	WarpLevel bool
	Counter   CounterHandle
}

// Context is the per-device view the host hands to launch callbacks.
type Context interface {
	// RelatedFunctions returns the functions that fn can call, transitively.
	RelatedFunctions(fn Function) []Function
	// InsertProbe patches a call to the counting routine before inst.
	InsertProbe(inst Instruction, p Probe) error
	// EnableInstrumented selects whether the next launch of fn runs the
	// instrumented or the original code.
	EnableInstrumented(fn Function, enabled bool)
	// Synchronize blocks until all device work has completed.
	Synchronize(ctx context.Context) error
}

// LaunchKind identifies which launch API was intercepted.
type LaunchKind int

const (
	LaunchKernel LaunchKind = iota
	LaunchKernelPTSZ
	LaunchCooperativeKernel
	LaunchCooperativeKernelPTSZ
	LaunchCooperativeKernelMultiDevice
)

var launchKindNames = map[LaunchKind]string{
	LaunchKernel:                       "cuLaunchKernel",
	LaunchKernelPTSZ:                   "cuLaunchKernel_ptsz",
	LaunchCooperativeKernel:            "cuLaunchCooperativeKernel",
	LaunchCooperativeKernelPTSZ:        "cuLaunchCooperativeKernel_ptsz",
	LaunchCooperativeKernelMultiDevice: "cuLaunchCooperativeKernelMultiDevice",
}

func (k LaunchKind) String() string {
	if name, ok := launchKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Cooperative reports whether k is one of the cooperative launch variants.
func (k LaunchKind) Cooperative() bool {
	switch k {
	case LaunchCooperativeKernel, LaunchCooperativeKernelPTSZ, LaunchCooperativeKernelMultiDevice:
		return true
	}
	return false
}

// ParseLaunchKind maps an API name back to its LaunchKind.
func ParseLaunchKind(name string) (LaunchKind, bool) {
	for k, n := range launchKindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Dim3 is a CUDA grid or block dimension.
type Dim3 struct {
	X uint32 `yaml:"x" json:"x"`
	Y uint32 `yaml:"y" json:"y"`
	Z uint32 `yaml:"z" json:"z"`
}

// Size returns X*Y*Z treating zero components as 1.
func (d Dim3) Size() uint64 {
	n := uint64(1)
	for _, v := range []uint32{d.X, d.Y, d.Z} {
		if v > 0 {
			n *= uint64(v)
		}
	}
	return n
}

// LaunchParams are the typed launch arguments of a kernel launch.
type LaunchParams struct {
	Grid  Dim3
	Block Dim3
}

// Phase tags a callback as the entry or the exit of an API call.
type Phase int

const (
	PhaseEntry Phase = iota
	PhaseExit
)

// EventKind distinguishes launch callbacks from profiler control callbacks.
type EventKind int

const (
	EventLaunch EventKind = iota
	EventProfilerStart
	EventProfilerStop
)

// LaunchEvent is one callback delivered by the host runtime.
type LaunchEvent struct {
	Kind     EventKind
	Phase    Phase
	Context  Context
	Function Function
	Launch   LaunchKind
	Params   LaunchParams
}

// Callback receives host events.
type Callback interface {
	HandleEvent(ev LaunchEvent)
}
