package vm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Program is an ordered sequence of instructions; an instruction's index is
// its address.
type Program struct {
	Code []Instruction

	// Lines optionally maps each address to the source line that produced
	// it (0 = unknown). It is not part of the text format.
	Lines []int
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Code)
}

// SourceLine returns the source line for addr, or 0.
func (p *Program) SourceLine(addr int) int {
	if addr < 0 || addr >= len(p.Lines) {
		return 0
	}
	return p.Lines[addr]
}

// String serializes the program, one instruction per line.
func (p *Program) String() string {
	var sb strings.Builder
	for _, in := range p.Code {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteTo writes the text format to w.
func (p *Program) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, p.String())
	return int64(n), err
}

// WriteFile writes the text format to path.
func (p *Program) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(p.String()), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// LoadError reports a malformed line in a bytecode file.
type LoadError struct {
	Line int    // 1-based line in the bytecode text
	Text string // offending line
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("bytecode line %d: %v", e.Line, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ParseProgram reads the text format. Blank lines are skipped. Mnemonics
// are not validated here; operands of known opcodes are.
func ParseProgram(r io.Reader) (*Program, error) {
	prog := &Program{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		in, err := ParseInstruction(text)
		if err != nil {
			return nil, &LoadError{Line: lineNo, Text: text, Err: err}
		}
		prog.Code = append(prog.Code, in)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prog, nil
}

// ParseProgramString parses the text format from a string.
func ParseProgramString(s string) (*Program, error) {
	return ParseProgram(strings.NewReader(s))
}

// LoadFile reads and parses a bytecode file.
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()
	prog, err := ParseProgram(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Listing returns a human-readable, address-annotated listing.
func (p *Program) Listing() string {
	return p.ListingWithName("")
}

// ListingWithName returns a listing with a name header.
func (p *Program) ListingWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; %d instructions\n", len(p.Code)))

	targets := p.jumpTargets()
	lastLine := 0
	for addr, in := range p.Code {
		if _, ok := targets[addr]; ok {
			sb.WriteString(fmt.Sprintf("L%d:\n", addr))
		}
		sb.WriteString(fmt.Sprintf("%04d  %-16s", addr, in.String()))
		if line := p.SourceLine(addr); line != 0 && line != lastLine {
			sb.WriteString(fmt.Sprintf("; line %d", line))
			lastLine = line
		}
		if info, ok := in.Op.Info(); !ok {
			sb.WriteString("; unknown opcode")
		} else if info.Operand == OperandInt && isBranch(in.Op) {
			sb.WriteString(fmt.Sprintf("; -> L%d", in.Arg.Int))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func isBranch(op Opcode) bool {
	switch op {
	case OpDSVI, OpDSVF, OpCHPR, OpPUSHER:
		return true
	}
	return false
}

func (p *Program) jumpTargets() map[int]struct{} {
	targets := make(map[int]struct{})
	for _, in := range p.Code {
		if isBranch(in.Op) && in.Arg.Kind == OperandInt {
			targets[in.Arg.Int] = struct{}{}
		}
	}
	return targets
}
