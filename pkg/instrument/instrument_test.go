package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InstrCount/pkg/classify"
	"InstrCount/pkg/counters"
	"InstrCount/pkg/host"
	"InstrCount/pkg/sim"
)

const counterBase = 0x1000

var allInstructions = classify.Range{Begin: 0, End: ^uint32(0)}

func newInstrumentor(opts Options) *Instrumentor {
	if opts.Range == (classify.Range{}) {
		opts.Range = allInstructions
	}
	return New(opts, counters.NewKernel(counterBase))
}

func TestInstrumentIfNeededOncePerFunction(t *testing.T) {
	dev := sim.NewDevice()
	fn := sim.NewFunction(1, "_Z6kernelv", "kernel()", []string{"IADD3 R1, R2, R3, RZ", "EXIT"})
	in := newInstrumentor(Options{CountWarpLevel: true})

	require.NoError(t, in.InstrumentIfNeeded(dev, fn))
	require.NoError(t, in.InstrumentIfNeeded(dev, fn))

	assert.Equal(t, 2, dev.ProbeCount())
	assert.Equal(t, uint64(2), in.Probes())
	assert.Equal(t, 1, in.Set().Len())
	assert.True(t, in.Set().Contains(1))
}

func TestInstrumentIfNeededRelatedFunctions(t *testing.T) {
	dev := sim.NewDevice()
	leaf := sim.NewFunction(3, "leaf", "", []string{"RET.ABS.NODEC R20 0x0"})
	helper := sim.NewFunction(2, "helper", "", []string{"SHFL.IDX PT, R3, R4, 0x0, 0x1f", "RET"}).Calls(leaf)
	kernelA := sim.NewFunction(1, "kernelA", "", []string{"CALL.ABS R6", "EXIT"}).Calls(helper)
	kernelB := sim.NewFunction(4, "kernelB", "", []string{"EXIT"}).Calls(helper)

	in := newInstrumentor(Options{})
	require.NoError(t, in.InstrumentIfNeeded(dev, kernelA))
	assert.Equal(t, 3, in.Set().Len())
	// kernelA: 2 generic + 1 indirect, helper: 2 generic + 1 shuffle, leaf: 1.
	assert.Equal(t, 7, dev.ProbeCount())

	// helper and leaf are shared and must not be probed again.
	require.NoError(t, in.InstrumentIfNeeded(dev, kernelB))
	assert.Equal(t, 4, in.Set().Len())
	assert.Equal(t, 8, dev.ProbeCount())
}

func TestInstrumentRespectsRange(t *testing.T) {
	dev := sim.NewDevice()
	fn := sim.NewFunction(1, "k", "", []string{
		"MOV R1, c[0x0][0x28]",
		"SHFL.BFLY PT, R3, R4, 0x1f, 0x1f",
		"VOTE.BALL R0, PT, P0",
		"EXIT",
	})
	in := newInstrumentor(Options{Range: classify.Range{Begin: 1, End: 2}})
	require.NoError(t, in.InstrumentIfNeeded(dev, fn))

	insts := fn.Instructions()
	assert.Empty(t, dev.Probes(insts[0]))
	assert.Len(t, dev.Probes(insts[1]), 2)
	assert.Empty(t, dev.Probes(insts[2]))
	assert.Empty(t, dev.Probes(insts[3]))
}

func TestProbeArguments(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantGuard host.Guard
	}{
		{"warp level, all lanes", Options{CountWarpLevel: true}, host.GuardAlways},
		{"thread level, predicate guard", Options{ExcludePredOff: true}, host.GuardPredicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := sim.NewDevice()
			fn := sim.NewFunction(1, "k", "", []string{"@P0 VOTE.BALL R0, PT, P0"})
			in := newInstrumentor(tt.opts)
			require.NoError(t, in.InstrumentIfNeeded(dev, fn))

			probes := dev.Probes(fn.Instructions()[0])
			require.Len(t, probes, 2)
			for _, p := range probes {
				assert.Equal(t, tt.wantGuard, p.Guard)
				assert.Equal(t, tt.opts.CountWarpLevel, p.WarpLevel)
			}
			assert.Equal(t, uint64(counterBase+8*uint64(counters.Ballot)), probes[0].Counter.Address())
			assert.Equal(t, uint64(counterBase), probes[1].Counter.Address())
		})
	}
}

type multiCategory struct{}

func (multiCategory) Index() uint32       { return 0 }
func (multiCategory) Opcode() string      { return "CALL.ABS" }
func (multiCategory) OpcodeShort() string { return "SHFL" }
func (multiCategory) Text() string        { return "CALL.ABS R2" }
func (multiCategory) Decoded() string     { return "" }

type recordingContext struct {
	related []host.Function
	probes  []host.Probe
	err     error
}

func (c *recordingContext) RelatedFunctions(host.Function) []host.Function { return c.related }
func (c *recordingContext) EnableInstrumented(host.Function, bool)        {}
func (c *recordingContext) Synchronize(context.Context) error             { return nil }
func (c *recordingContext) InsertProbe(_ host.Instruction, p host.Probe) error {
	if c.err != nil {
		return c.err
	}
	c.probes = append(c.probes, p)
	return nil
}

type oneInstruction struct{ inst host.Instruction }

func (f oneInstruction) ID() host.FunctionID               { return 9 }
func (f oneInstruction) Name(bool) string                  { return "f" }
func (f oneInstruction) Instructions() []host.Instruction { return []host.Instruction{f.inst} }

func TestProbeOrderOnMultiCategoryInstruction(t *testing.T) {
	ctx := &recordingContext{}
	in := newInstrumentor(Options{CountWarpLevel: true})
	require.NoError(t, in.InstrumentIfNeeded(ctx, oneInstruction{multiCategory{}}))

	// CALL.ABS with a register and short opcode SHFL, but not VOTE.BALL.
	require.Len(t, ctx.probes, 3)
	var got []uint64
	for _, p := range ctx.probes {
		got = append(got, p.Counter.Address())
	}
	assert.Equal(t, []uint64{counterBase + 8, counterBase + 16, counterBase}, got)
}

func TestInsertProbeFailure(t *testing.T) {
	ctx := &recordingContext{err: errors.New("patch failed")}
	in := newInstrumentor(Options{})
	err := in.InstrumentIfNeeded(ctx, oneInstruction{multiCategory{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch failed")
}

func TestRelatedFunctionsNotModified(t *testing.T) {
	callee := oneInstruction{multiCategory{}}
	backing := make([]host.Function, 2, 4)
	backing[0] = callee
	ctx := &recordingContext{related: backing[:1]}

	caller := sim.NewFunction(1, "caller", "", []string{"EXIT"})
	in := newInstrumentor(Options{})
	require.NoError(t, in.InstrumentIfNeeded(ctx, caller))

	assert.Nil(t, backing[1], "host slice was written past its length")
	assert.Len(t, ctx.related, 1)
	assert.Equal(t, 2, in.Set().Len())
	assert.True(t, in.Set().Contains(1))
	assert.True(t, in.Set().Contains(9))
}
