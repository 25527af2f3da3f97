// Package sim is an in-process host runtime: it decodes functions from SASS
// text, applies probe insertions, and executes kernels warp by warp so the
// interceptor can be driven without a GPU.
package sim

import (
	"strings"

	"InstrCount/pkg/host"
)

// Instruction is a decoded SASS instruction.
type Instruction struct {
	index      uint32
	opcode     string
	short      string
	text       string
	decoded    string
	predicated bool
}

// NewInstruction decodes text, e.g. "@P0 SHFL.BFLY PT, R3, R4, 0x1f, 0x1f".
func NewInstruction(index uint32, text string) *Instruction {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	inst := &Instruction{index: index, text: text}

	fields := strings.Fields(text)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "@") {
		inst.predicated = true
		fields = fields[1:]
	}
	if len(fields) > 0 {
		inst.opcode = fields[0]
		inst.short, _, _ = strings.Cut(inst.opcode, ".")
	}

	operands := ""
	if len(fields) > 1 {
		operands = strings.Join(fields[1:], " ")
	}
	inst.decoded = decode(inst.opcode, operands, inst.predicated)
	return inst
}

func decode(opcode, operands string, predicated bool) string {
	var b strings.Builder
	b.WriteString("opcode=")
	b.WriteString(opcode)
	if predicated {
		b.WriteString(" guarded")
	}
	for i, op := range strings.Split(operands, ",") {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		b.WriteString(" op")
		b.WriteByte(byte('0' + i%10))
		b.WriteString("=")
		b.WriteString(operandKind(op))
		b.WriteString(":")
		b.WriteString(op)
	}
	return b.String()
}

func operandKind(op string) string {
	switch {
	case strings.HasPrefix(op, "UR"):
		return "UREG"
	case strings.HasPrefix(op, "R") || strings.HasPrefix(op, "-R") || strings.HasPrefix(op, "|R"):
		return "REG"
	case strings.HasPrefix(op, "P") || strings.HasPrefix(op, "!P"):
		return "PRED"
	case strings.HasPrefix(op, "c["):
		return "CBANK"
	case strings.HasPrefix(op, "["):
		return "MREF"
	case strings.HasPrefix(op, "0x") || strings.HasPrefix(op, "-0x"):
		return "IMM_UINT64"
	default:
		return "GENERIC"
	}
}

func (i *Instruction) Index() uint32       { return i.index }
func (i *Instruction) Opcode() string      { return i.opcode }
func (i *Instruction) OpcodeShort() string { return i.short }
func (i *Instruction) Text() string        { return i.text }
func (i *Instruction) Decoded() string     { return i.decoded }

// Predicated reports whether the instruction carries a guard predicate.
func (i *Instruction) Predicated() bool { return i.predicated }

// Function is a compiled function with its callees.
type Function struct {
	id        host.FunctionID
	mangled   string
	demangled string
	instrs    []*Instruction
	calls     []*Function
}

// NewFunction builds a function from SASS lines, one instruction per line.
func NewFunction(id host.FunctionID, mangled, demangled string, sass []string) *Function {
	f := &Function{id: id, mangled: mangled, demangled: demangled}
	for i, line := range sass {
		f.instrs = append(f.instrs, NewInstruction(uint32(i), line))
	}
	return f
}

// Calls records that f may call callee.
func (f *Function) Calls(callee ...*Function) *Function {
	f.calls = append(f.calls, callee...)
	return f
}

func (f *Function) ID() host.FunctionID { return f.id }

func (f *Function) Name(mangled bool) string {
	if mangled || f.demangled == "" {
		return f.mangled
	}
	return f.demangled
}

func (f *Function) Instructions() []host.Instruction {
	out := make([]host.Instruction, len(f.instrs))
	for i, inst := range f.instrs {
		out[i] = inst
	}
	return out
}

// reachable returns the functions f can call, transitively, excluding f.
func (f *Function) reachable() []*Function {
	seen := map[host.FunctionID]bool{f.id: true}
	var out []*Function
	queue := append([]*Function(nil), f.calls...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if seen[g.id] {
			continue
		}
		seen[g.id] = true
		out = append(out, g)
		queue = append(queue, g.calls...)
	}
	return out
}
