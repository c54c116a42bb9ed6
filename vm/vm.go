package vm

import (
	"io"
	"os"

	"github.com/tliron/commonlog"
)

// DefaultMaxCallDepth bounds nested procedure calls.
const DefaultMaxCallDepth = 10000

// VM executes a Program against an operand stack, a flat data memory and a
// call stack of saved frame pointers. A VM runs one program once and is
// not safe for concurrent use.
type VM struct {
	prog  *Program
	stack []float64
	mem   Memory
	calls []int // saved frame pointers

	ip      int
	fp      int
	running bool

	in     Input
	out    io.Writer
	prompt string
	log    commonlog.Logger
	trace  TraceHook

	maxSteps     int64
	maxCallDepth int
	stats        Stats
}

// Option configures a VM.
type Option func(*VM)

// WithInput reads LEIT values from r.
func WithInput(r io.Reader) Option {
	return func(v *VM) { v.in = ReaderInput(r) }
}

// WithInputSource sets the LEIT source.
func WithInputSource(in Input) Option {
	return func(v *VM) { v.in = in }
}

// WithOutput sets where IMPR writes.
func WithOutput(w io.Writer) Option {
	return func(v *VM) { v.out = w }
}

// WithInputPrompt sets text written to the output before each LEIT.
func WithInputPrompt(prompt string) Option {
	return func(v *VM) { v.prompt = prompt }
}

// WithLogger overrides the logger.
func WithLogger(log commonlog.Logger) Option {
	return func(v *VM) { v.log = log }
}

// WithTrace installs a trace hook.
func WithTrace(hook TraceHook) Option {
	return func(v *VM) { v.trace = hook }
}

// WithMaxSteps limits the number of executed instructions (0 = unlimited).
func WithMaxSteps(n int64) Option {
	return func(v *VM) { v.maxSteps = n }
}

// WithMaxCallDepth limits nested calls (0 = DefaultMaxCallDepth).
func WithMaxCallDepth(n int) Option {
	return func(v *VM) { v.maxCallDepth = n }
}

// New creates a VM for prog. By default input comes from stdin and output
// goes to stdout.
func New(prog *Program, opts ...Option) *VM {
	v := &VM{
		prog:         prog,
		stack:        make([]float64, 0, 64),
		in:           ReaderInput(os.Stdin),
		out:          os.Stdout,
		log:          commonlog.GetLogger("lalg.vm"),
		maxCallDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.maxCallDepth <= 0 {
		v.maxCallDepth = DefaultMaxCallDepth
	}
	return v
}

// Program returns the program being executed.
func (v *VM) Program() *Program {
	return v.prog
}

// IP returns the instruction pointer.
func (v *VM) IP() int {
	return v.ip
}

// FramePointer returns the base address of the current activation.
func (v *VM) FramePointer() int {
	return v.fp
}

// CallDepth returns the number of active procedure calls.
func (v *VM) CallDepth() int {
	return len(v.calls)
}

// Stack returns a copy of the operand stack, top last.
func (v *VM) Stack() []float64 {
	out := make([]float64, len(v.stack))
	copy(out, v.stack)
	return out
}

// Memory returns a copy of data memory.
func (v *VM) Memory() []float64 {
	return v.mem.Snapshot()
}

// Running reports whether the VM has not halted.
func (v *VM) Running() bool {
	return v.running
}

// Stats returns execution statistics.
func (v *VM) Stats() Stats {
	return v.stats
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (v *VM) push(x float64) {
	v.stack = append(v.stack, x)
	if len(v.stack) > v.stats.PeakStack {
		v.stats.PeakStack = len(v.stack)
	}
}

func (v *VM) pop() float64 {
	n := len(v.stack)
	if n == 0 {
		faultf("stack underflow")
	}
	x := v.stack[n-1]
	v.stack = v.stack[:n-1]
	return x
}

// pop2 returns (a, b) where b was on top.
func (v *VM) pop2() (float64, float64) {
	b := v.pop()
	a := v.pop()
	return a, b
}

func (v *VM) frames() []FrameInfo {
	if len(v.calls) == 0 {
		return nil
	}
	out := make([]FrameInfo, len(v.calls))
	for i, saved := range v.calls {
		base := v.fp
		if i+1 < len(v.calls) {
			base = v.calls[i+1]
		}
		out[i] = FrameInfo{Depth: i, Base: base, Saved: saved}
	}
	return out
}
