package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStepLimit is the cause of a RuntimeError raised when a run exceeds its
// step budget.
var ErrStepLimit = errors.New("step limit exceeded")

// TraceInfo describes a single instruction dispatch.
type TraceInfo struct {
	Addr         int
	Instr        Instruction
	SourceLine   int
	StackDepth   int
	FramePointer int
	CallDepth    int
}

// TraceHook observes instruction dispatch. It is called before the
// instruction executes.
type TraceHook func(TraceInfo)

// FrameInfo describes one active activation record. Depth 0 is the
// outermost call.
type FrameInfo struct {
	Depth int
	Base  int // frame pointer of the activation
	Saved int // caller's frame pointer, restored by RTPR
}

// RuntimeError carries location and call-stack information for a VM fault.
type RuntimeError struct {
	Addr       int
	Instr      Instruction
	SourceLine int
	Message    string
	Frames     []FrameInfo // innermost last
	Cause      error
}

func (e *RuntimeError) Error() string {
	loc := []string{fmt.Sprintf("at %d (%s)", e.Addr, e.Instr)}
	if e.SourceLine > 0 {
		loc = append(loc, fmt.Sprintf("line %d", e.SourceLine))
	}
	return fmt.Sprintf("runtime error %s: %s", strings.Join(loc, ", "), e.Message)
}

// Unwrap exposes the original error, if any.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// StackTrace renders the active frames, innermost first.
func (e *RuntimeError) StackTrace() string {
	if len(e.Frames) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := len(e.Frames) - 1; i >= 0; i-- {
		fr := e.Frames[i]
		sb.WriteString(fmt.Sprintf("  #%d frame base=%d caller fp=%d\n", fr.Depth, fr.Base, fr.Saved))
	}
	return sb.String()
}

// fault is raised by instruction handlers and recovered per instruction.
type fault struct {
	msg   string
	cause error
}

func faultf(format string, args ...any) {
	panic(&fault{msg: fmt.Sprintf(format, args...)})
}

func faultWrap(err error, format string, args ...any) {
	panic(&fault{msg: fmt.Sprintf(format, args...), cause: err})
}

// Stats summarizes a run.
type Stats struct {
	Steps        int64 `json:"steps" cbor:"steps"`
	PeakStack    int   `json:"peakStack" cbor:"peakStack"`
	PeakMemory   int   `json:"peakMemory" cbor:"peakMemory"`
	MaxCallDepth int   `json:"maxCallDepth" cbor:"maxCallDepth"`
}

func (s Stats) String() string {
	return fmt.Sprintf("steps=%d peak-stack=%d peak-memory=%d max-call-depth=%d",
		s.Steps, s.PeakStack, s.PeakMemory, s.MaxCallDepth)
}
