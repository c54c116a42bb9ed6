package compiler

import (
	"fmt"

	"github.com/chazu/lalg/vm"
)

// ---------------------------------------------------------------------------
// CodeGenerator: append-only instruction log with backpatching
// ---------------------------------------------------------------------------

// CodeGenerator accumulates emitted instructions. An instruction's address
// is its index; only operands change after emission, through Patch.
type CodeGenerator struct {
	code  []vm.Instruction
	lines []int
	line  int // source line attached to new instructions
}

// NewCodeGenerator creates an empty generator.
func NewCodeGenerator() *CodeGenerator {
	return &CodeGenerator{}
}

// SetLine sets the source line recorded for subsequent instructions.
func (g *CodeGenerator) SetLine(line int) {
	g.line = line
}

func (g *CodeGenerator) emit(in vm.Instruction) int {
	addr := len(g.code)
	g.code = append(g.code, in)
	g.lines = append(g.lines, g.line)
	return addr
}

// Emit appends an instruction without an operand and returns its address.
func (g *CodeGenerator) Emit(op vm.Opcode) int {
	return g.emit(vm.Instruction{Op: op})
}

// EmitInt appends an instruction with an integer operand.
func (g *CodeGenerator) EmitInt(op vm.Opcode, n int) int {
	return g.emit(vm.Instruction{Op: op, Arg: vm.IntOperand(n)})
}

// EmitFloat appends an instruction with a literal operand.
func (g *CodeGenerator) EmitFloat(op vm.Opcode, v float64) int {
	return g.emit(vm.Instruction{Op: op, Arg: vm.FloatOperand(v)})
}

// CurrentAddress returns the address the next instruction will get.
func (g *CodeGenerator) CurrentAddress() int {
	return len(g.code)
}

// Patch rewrites the integer operand of the instruction at addr. Patching
// an address out of range or an instruction without an integer operand is
// a compiler bug and panics.
func (g *CodeGenerator) Patch(addr, arg int) {
	if addr < 0 || addr >= len(g.code) {
		panic(fmt.Sprintf("codegen: patch of address %d outside 0..%d", addr, len(g.code)-1))
	}
	in := &g.code[addr]
	if in.Arg.Kind != vm.OperandInt {
		panic(fmt.Sprintf("codegen: patch of %s at %d, which has no address operand", in.Op, addr))
	}
	in.Arg.Int = arg
}

// At returns the instruction at addr.
func (g *CodeGenerator) At(addr int) vm.Instruction {
	return g.code[addr]
}

// Program returns the emitted program, with its source line table.
func (g *CodeGenerator) Program() *vm.Program {
	code := make([]vm.Instruction, len(g.code))
	copy(code, g.code)
	lines := make([]int, len(g.lines))
	copy(lines, g.lines)
	return &vm.Program{Code: code, Lines: lines}
}

// String serializes the emitted program in the text format.
func (g *CodeGenerator) String() string {
	return g.Program().String()
}
