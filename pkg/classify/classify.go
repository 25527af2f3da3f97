// Package classify decides which static instructions are counted and in
// which categories.
package classify

import (
	"strings"

	"InstrCount/pkg/counters"
	"InstrCount/pkg/host"
)

const (
	opIndirectCall = "CALL.ABS"
	opShuffle      = "SHFL"
	opBallot       = "VOTE.BALL"
)

// Range is the half-open instruction index interval [Begin, End).
type Range struct {
	Begin uint32
	End   uint32
}

// Contains reports whether idx lies in the interval. An inverted interval
// contains nothing.
func (r Range) Contains(idx uint32) bool {
	return r.Begin <= idx && idx < r.End
}

// Categories is a bit set of counters.Category values, excluding Generic.
type Categories uint8

// Has reports whether c is in the set.
func (s Categories) Has(c counters.Category) bool {
	return s&(1<<uint(c)) != 0
}

func (s Categories) with(c counters.Category) Categories {
	return s | 1<<uint(c)
}

// List returns the members in Indirect, Shuffle, Ballot order.
func (s Categories) List() []counters.Category {
	var out []counters.Category
	for _, c := range []counters.Category{counters.Indirect, counters.Shuffle, counters.Ballot} {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Result is the classification of one instruction.
type Result struct {
	Eligible   bool
	Categories Categories
}

// Classify is pure: it reads only the instruction and the interval.
//
// The indirect-call check is a textual approximation: a CALL.ABS whose
// operand text mentions a register is taken as register-indirect.
func Classify(inst host.Instruction, r Range) Result {
	if !r.Contains(inst.Index()) {
		return Result{}
	}

	res := Result{Eligible: true}
	op := inst.Opcode()
	if op == opIndirectCall && strings.Contains(inst.Text(), "R") {
		res.Categories = res.Categories.with(counters.Indirect)
	}
	if inst.OpcodeShort() == opShuffle {
		res.Categories = res.Categories.with(counters.Shuffle)
	}
	if op == opBallot {
		res.Categories = res.Categories.with(counters.Ballot)
	}
	return res
}
