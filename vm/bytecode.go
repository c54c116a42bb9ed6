package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is an instruction mnemonic. Opcodes are kept as text so that a
// program containing an unknown mnemonic still loads; it faults only when
// the VM reaches it.
type Opcode string

// Program markers
const (
	OpINPP Opcode = "INPP" // program start (no-op)
	OpPARA Opcode = "PARA" // halt
)

// Memory and variables
const (
	OpALME  Opcode = "ALME"  // grow memory by one cell
	OpCRCT  Opcode = "CRCT"  // push literal
	OpCRVL  Opcode = "CRVL"  // push memory[a]
	OpARMZ  Opcode = "ARMZ"  // pop into memory[a]
	OpCREL  Opcode = "CREL"  // push memory[fp+a]
	OpAMREL Opcode = "AMREL" // pop into memory[fp+a]
)

// Arithmetic
const (
	OpSOMA Opcode = "SOMA" // a + b
	OpSUBT Opcode = "SUBT" // a - b
	OpMULT Opcode = "MULT" // a * b
	OpDIVI Opcode = "DIVI" // a / b
)

// Comparison (push 1 or 0)
const (
	OpCMIG Opcode = "CMIG" // ==
	OpCMDG Opcode = "CMDG" // !=
	OpCMAI Opcode = "CMAI" // >=
	OpCPMI Opcode = "CPMI" // <=
	OpCMMA Opcode = "CMMA" // >
	OpCMME Opcode = "CMME" // <
)

// I/O
const (
	OpIMPR Opcode = "IMPR" // pop and print
	OpLEIT Opcode = "LEIT" // read a number and push it
)

// Control flow
const (
	OpDSVI Opcode = "DSVI" // jump
	OpDSVF Opcode = "DSVF" // pop, jump if zero
)

// Procedures
const (
	OpPUSHER Opcode = "PUSHER" // push return address
	OpCHPR   Opcode = "CHPR"   // call
	OpENPR   Opcode = "ENPR"   // enter procedure: save fp, fp = len(memory)
	OpRTPR   Opcode = "RTPR"   // return: drop frame, restore fp, jump to return address
)

// OperandKind tells what kind of argument an opcode carries.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt
	OperandFloat
)

func (k OperandKind) String() string {
	switch k {
	case OperandNone:
		return "none"
	case OperandInt:
		return "int"
	case OperandFloat:
		return "float"
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string      // mnemonic
	Operand OperandKind // argument kind
	Pops    int         // operand stack values consumed
	Pushes  int         // operand stack values produced
}

// StackEffect is the net change to the operand stack depth.
func (i OpcodeInfo) StackEffect() int {
	return i.Pushes - i.Pops
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpINPP: {"INPP", OperandNone, 0, 0},
	OpPARA: {"PARA", OperandNone, 0, 0},

	OpALME:  {"ALME", OperandInt, 0, 0},
	OpCRCT:  {"CRCT", OperandFloat, 0, 1},
	OpCRVL:  {"CRVL", OperandInt, 0, 1},
	OpARMZ:  {"ARMZ", OperandInt, 1, 0},
	OpCREL:  {"CREL", OperandInt, 0, 1},
	OpAMREL: {"AMREL", OperandInt, 1, 0},

	OpSOMA: {"SOMA", OperandNone, 2, 1},
	OpSUBT: {"SUBT", OperandNone, 2, 1},
	OpMULT: {"MULT", OperandNone, 2, 1},
	OpDIVI: {"DIVI", OperandNone, 2, 1},

	OpCMIG: {"CMIG", OperandNone, 2, 1},
	OpCMDG: {"CMDG", OperandNone, 2, 1},
	OpCMAI: {"CMAI", OperandNone, 2, 1},
	OpCPMI: {"CPMI", OperandNone, 2, 1},
	OpCMMA: {"CMMA", OperandNone, 2, 1},
	OpCMME: {"CMME", OperandNone, 2, 1},

	OpIMPR: {"IMPR", OperandNone, 1, 0},
	OpLEIT: {"LEIT", OperandNone, 0, 1},

	OpDSVI: {"DSVI", OperandInt, 0, 0},
	OpDSVF: {"DSVF", OperandInt, 1, 0},

	OpPUSHER: {"PUSHER", OperandInt, 0, 1},
	OpCHPR:   {"CHPR", OperandInt, 0, 0},
	OpENPR:   {"ENPR", OperandNone, 0, 0},
	OpRTPR:   {"RTPR", OperandNone, 1, 0},
}

// Info returns metadata for the opcode. ok is false for unknown mnemonics.
func (op Opcode) Info() (info OpcodeInfo, ok bool) {
	info, ok = opcodeTable[op]
	return info, ok
}

// Known reports whether the VM can execute the opcode.
func (op Opcode) Known() bool {
	_, ok := opcodeTable[op]
	return ok
}

func (op Opcode) String() string {
	return string(op)
}

// Opcodes returns every known opcode, in no particular order.
func Opcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeTable))
	for op := range opcodeTable {
		ops = append(ops, op)
	}
	return ops
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Operand is the optional argument of an instruction.
type Operand struct {
	Kind  OperandKind
	Int   int
	Float float64
}

// NoOperand is the empty operand.
var NoOperand = Operand{}

// IntOperand builds an integer (address) operand.
func IntOperand(n int) Operand {
	return Operand{Kind: OperandInt, Int: n}
}

// FloatOperand builds a literal operand.
func FloatOperand(v float64) Operand {
	return Operand{Kind: OperandFloat, Float: v}
}

// Value returns the operand as a number.
func (o Operand) Value() float64 {
	if o.Kind == OperandFloat {
		return o.Float
	}
	return float64(o.Int)
}

func (o Operand) String() string {
	switch o.Kind {
	case OperandInt:
		return strconv.Itoa(o.Int)
	case OperandFloat:
		return FormatLiteral(o.Float)
	}
	return ""
}

// Instruction is one program cell: a mnemonic and an optional operand.
type Instruction struct {
	Op  Opcode
	Arg Operand
}

func (i Instruction) String() string {
	if i.Arg.Kind == OperandNone {
		return string(i.Op)
	}
	return string(i.Op) + " " + i.Arg.String()
}

// FormatLiteral renders a literal so that it always reads back as a
// decimal number: integral values keep a ".0" suffix.
func FormatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return s
	}
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// FormatNumber renders a runtime value the way IMPR prints it.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseOperand parses the argument text for op. Unknown opcodes accept an
// integer or a decimal operand.
func parseOperand(op Opcode, text string) (Operand, error) {
	kind := OperandNone
	if info, ok := op.Info(); ok {
		kind = info.Operand
	} else if _, err := strconv.Atoi(text); err == nil {
		kind = OperandInt
	} else {
		kind = OperandFloat
	}

	switch kind {
	case OperandInt:
		n, err := strconv.Atoi(text)
		if err != nil {
			return NoOperand, fmt.Errorf("%s expects an integer operand, got %q", op, text)
		}
		return IntOperand(n), nil
	case OperandFloat:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return NoOperand, fmt.Errorf("%s expects a numeric operand, got %q", op, text)
		}
		return FloatOperand(v), nil
	}
	return NoOperand, fmt.Errorf("%s takes no operand, got %q", op, text)
}

// ParseInstruction parses one line of the text format: MNEMONIC or
// MNEMONIC ARG.
func ParseInstruction(line string) (Instruction, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 0:
		return Instruction{}, fmt.Errorf("empty instruction")
	case 1:
		op := Opcode(fields[0])
		if info, ok := op.Info(); ok && info.Operand != OperandNone {
			return Instruction{}, fmt.Errorf("%s requires an operand", op)
		}
		return Instruction{Op: op}, nil
	case 2:
		op := Opcode(fields[0])
		arg, err := parseOperand(op, fields[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Op: op, Arg: arg}, nil
	}
	return Instruction{}, fmt.Errorf("too many fields in %q", line)
}
