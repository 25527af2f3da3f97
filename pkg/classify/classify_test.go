package classify

import (
	"io"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"InstrCount/pkg/counters"
)

// TestMain silences logs when benchmarks are running.
func TestMain(m *testing.M) {
	for _, arg := range os.Args {
		if strings.Contains(arg, "-test.bench") {
			log.SetOutput(io.Discard)
			break
		}
	}
	os.Exit(m.Run())
}

type inst struct {
	idx    uint32
	opcode string
	text   string
}

func (i inst) Index() uint32   { return i.idx }
func (i inst) Opcode() string  { return i.opcode }
func (i inst) Text() string    { return i.text }
func (i inst) Decoded() string { return "" }
func (i inst) OpcodeShort() string {
	short, _, _ := strings.Cut(i.opcode, ".")
	return short
}

var all = Range{Begin: 0, End: ^uint32(0)}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		inst inst
		r    Range
		want Result
	}{
		{
			name: "plain instruction is generic only",
			inst: inst{3, "IADD3", "IADD3 R1, R2, R3, RZ"},
			r:    all,
			want: Result{Eligible: true},
		},
		{
			name: "register indirect call",
			inst: inst{0, "CALL.ABS", "CALL.ABS R4"},
			r:    all,
			want: Result{Eligible: true, Categories: Categories(0).with(counters.Indirect)},
		},
		{
			name: "absolute call without register",
			inst: inst{0, "CALL.ABS", "CALL.ABS 0x0"},
			r:    all,
			want: Result{Eligible: true},
		},
		{
			name: "relative call mentioning a register",
			inst: inst{0, "CALL.REL", "CALL.REL R4"},
			r:    all,
			want: Result{Eligible: true},
		},
		{
			name: "shuffle with modifiers",
			inst: inst{1, "SHFL.BFLY", "SHFL.BFLY PT, R3, R4, 0x1f, 0x1f"},
			r:    all,
			want: Result{Eligible: true, Categories: Categories(0).with(counters.Shuffle)},
		},
		{
			name: "ballot",
			inst: inst{2, "VOTE.BALL", "VOTE.BALL R0, PT, P0"},
			r:    all,
			want: Result{Eligible: true, Categories: Categories(0).with(counters.Ballot)},
		},
		{
			name: "vote any is not a ballot",
			inst: inst{2, "VOTE.ANY", "VOTE.ANY R0, PT, P0"},
			r:    all,
			want: Result{Eligible: true},
		},
		{
			name: "below range",
			inst: inst{4, "SHFL.IDX", "SHFL.IDX PT, R3, R4, 0x0, 0x1f"},
			r:    Range{Begin: 5, End: 10},
		},
		{
			name: "range end is exclusive",
			inst: inst{10, "VOTE.BALL", "VOTE.BALL R0, PT, P0"},
			r:    Range{Begin: 5, End: 10},
		},
		{
			name: "range begin is inclusive",
			inst: inst{5, "IADD3", "IADD3 R1, R2, R3, RZ"},
			r:    Range{Begin: 5, End: 10},
			want: Result{Eligible: true},
		},
		{
			name: "inverted range selects nothing",
			inst: inst{7, "IADD3", "IADD3 R1, R2, R3, RZ"},
			r:    Range{Begin: 10, End: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.inst, tt.r))
		})
	}
}

func TestCategoriesList(t *testing.T) {
	s := Categories(0).with(counters.Ballot).with(counters.Indirect)
	assert.Equal(t, []counters.Category{counters.Indirect, counters.Ballot}, s.List())
	assert.False(t, s.Has(counters.Shuffle))
	assert.Empty(t, Categories(0).List())
}

func BenchmarkClassify(b *testing.B) {
	insts := []inst{
		{0, "IADD3", "IADD3 R1, R2, R3, RZ"},
		{1, "SHFL.BFLY", "SHFL.BFLY PT, R3, R4, 0x1f, 0x1f"},
		{2, "VOTE.BALL", "VOTE.BALL R0, PT, P0"},
		{3, "CALL.ABS", "CALL.ABS R4"},
	}
	for i := 0; i < b.N; i++ {
		Classify(insts[i%len(insts)], all)
	}
}
