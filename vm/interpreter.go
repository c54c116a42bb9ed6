package vm

import (
	"context"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Fetch-decode-execute loop
// ---------------------------------------------------------------------------

// Run executes the program from the current instruction until PARA, the end
// of the program, or a fault. Faults halt the VM and are returned as
// *RuntimeError. ctx is checked between instructions; a blocked LEIT is
// not interrupted.
func (v *VM) Run(ctx context.Context) error {
	v.running = true
	for v.running && v.ip >= 0 && v.ip < len(v.prog.Code) {
		if v.stats.Steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return v.fail(v.ip, v.prog.Code[v.ip], "execution cancelled", err)
			}
		}
		if v.maxSteps > 0 && v.stats.Steps >= v.maxSteps {
			return v.fail(v.ip, v.prog.Code[v.ip],
				fmt.Sprintf("step limit of %d exceeded", v.maxSteps), ErrStepLimit)
		}
		if err := v.Step(); err != nil {
			return err
		}
	}
	v.running = false
	return nil
}

// Step executes the single instruction at the instruction pointer.
func (v *VM) Step() (err error) {
	addr := v.ip
	if addr < 0 || addr >= len(v.prog.Code) {
		v.running = false
		return nil
	}
	in := v.prog.Code[addr]

	if v.trace != nil {
		v.trace(TraceInfo{
			Addr:         addr,
			Instr:        in,
			SourceLine:   v.prog.SourceLine(addr),
			StackDepth:   len(v.stack),
			FramePointer: v.fp,
			CallDepth:    len(v.calls),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*fault)
			if !ok {
				panic(r)
			}
			err = v.fail(addr, in, f.msg, f.cause)
		}
	}()

	v.stats.Steps++
	v.execute(in)
	return nil
}

func (v *VM) fail(addr int, in Instruction, msg string, cause error) error {
	v.running = false
	rerr := &RuntimeError{
		Addr:       addr,
		Instr:      in,
		SourceLine: v.prog.SourceLine(addr),
		Message:    msg,
		Frames:     v.frames(),
		Cause:      cause,
	}
	v.log.Errorf("%s", rerr.Error())
	return rerr
}

// execute dispatches one instruction and advances ip unless the
// instruction redirected it.
func (v *VM) execute(in Instruction) {
	switch in.Op {
	case OpINPP:
		// program start

	case OpPARA:
		v.running = false

	case OpALME:
		v.mem.Grow(1)
		v.notePeakMemory()

	case OpCRCT:
		v.push(in.Arg.Value())

	case OpCRVL:
		v.push(v.load(in.Arg.Int))

	case OpARMZ:
		v.store(in.Arg.Int, v.pop())

	case OpCREL:
		v.push(v.load(v.fp + in.Arg.Int))

	case OpAMREL:
		v.store(v.fp+in.Arg.Int, v.pop())

	case OpSOMA:
		a, b := v.pop2()
		v.push(a + b)

	case OpSUBT:
		a, b := v.pop2()
		v.push(a - b)

	case OpMULT:
		a, b := v.pop2()
		v.push(a * b)

	case OpDIVI:
		a, b := v.pop2()
		v.push(a / b)

	case OpCMIG:
		a, b := v.pop2()
		v.push(truth(a == b))

	case OpCMDG:
		a, b := v.pop2()
		v.push(truth(a != b))

	case OpCMAI:
		a, b := v.pop2()
		v.push(truth(a >= b))

	case OpCPMI:
		a, b := v.pop2()
		v.push(truth(a <= b))

	case OpCMMA:
		a, b := v.pop2()
		v.push(truth(a > b))

	case OpCMME:
		a, b := v.pop2()
		v.push(truth(a < b))

	case OpIMPR:
		x := v.pop()
		if _, err := fmt.Fprintln(v.out, FormatNumber(x)); err != nil {
			faultWrap(err, "cannot write output: %v", err)
		}

	case OpLEIT:
		if v.prompt != "" {
			fmt.Fprint(v.out, v.prompt)
		}
		if v.in == nil {
			faultWrap(ErrNoInput, "input failed: %v", ErrNoInput)
		}
		x, err := v.in.ReadNumber()
		if err != nil {
			faultWrap(err, "input failed: %v", err)
		}
		v.push(x)

	case OpDSVI:
		v.ip = in.Arg.Int
		return

	case OpDSVF:
		if v.pop() == 0 {
			v.ip = in.Arg.Int
			return
		}

	case OpPUSHER:
		v.push(in.Arg.Value())

	case OpCHPR:
		v.ip = in.Arg.Int
		return

	case OpENPR:
		if len(v.calls) >= v.maxCallDepth {
			faultf("call stack overflow (depth %d)", len(v.calls))
		}
		v.calls = append(v.calls, v.fp)
		v.fp = v.mem.Len()
		if len(v.calls) > v.stats.MaxCallDepth {
			v.stats.MaxCallDepth = len(v.calls)
		}

	case OpRTPR:
		if len(v.calls) == 0 {
			faultf("return with no active call")
		}
		v.mem.Truncate(v.fp)
		v.fp = v.calls[len(v.calls)-1]
		v.calls = v.calls[:len(v.calls)-1]
		ret := v.pop()
		if ret != math.Trunc(ret) || ret < 0 || ret > float64(len(v.prog.Code)) {
			faultf("invalid return address %s", FormatNumber(ret))
		}
		v.ip = int(ret)
		return

	default:
		faultf("unknown opcode %q", string(in.Op))
	}
	v.ip++
}

func (v *VM) load(addr int) float64 {
	x, ok := v.mem.Load(addr)
	if !ok {
		faultf("load from address %d outside memory of %d cells", addr, v.mem.Len())
	}
	return x
}

func (v *VM) store(addr int, x float64) {
	if !v.mem.Store(addr, x) {
		faultf("store to invalid address %d", addr)
	}
	v.notePeakMemory()
}

func (v *VM) notePeakMemory() {
	if n := v.mem.Len(); n > v.stats.PeakMemory {
		v.stats.PeakMemory = n
	}
}

func truth(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
