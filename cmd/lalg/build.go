package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tliron/commonlog"

	"github.com/chazu/lalg/compiler"
	"github.com/chazu/lalg/vm"
)

// buildConfig holds the resolved settings for one compile-and-run.
type buildConfig struct {
	Source       string
	Output       string
	Listing      bool
	Symbols      bool
	Trace        bool
	MaxSteps     int64
	MaxCallDepth int
	InputPrompt  string
}

// build compiles cfg.Source and writes the bytecode to cfg.Output.
// The listing and symbol table go to w when requested.
func build(cfg buildConfig, w io.Writer) error {
	log := commonlog.GetLogger("lalg")

	res, err := compiler.CompileFile(cfg.Source)
	if err != nil {
		return err
	}
	if cfg.Symbols {
		for _, d := range res.Declarations {
			fmt.Fprintln(w, d)
		}
	}
	if cfg.Listing {
		fmt.Fprint(w, res.Program.ListingWithName(cfg.Source))
	}

	if err := res.Program.WriteFile(cfg.Output); err != nil {
		return err
	}
	log.Infof("compiled %s -> %s (%d instructions)", cfg.Source, cfg.Output, res.Program.Len())
	return nil
}

// execute loads a bytecode file and runs it with the console attached.
func execute(ctx context.Context, path string, cfg buildConfig, stdin io.Reader, stdout, stderr io.Writer) error {
	prog, err := vm.LoadFile(path)
	if err != nil {
		return err
	}

	opts := []vm.Option{
		vm.WithInput(stdin),
		vm.WithOutput(stdout),
	}
	if cfg.InputPrompt != "" {
		opts = append(opts, vm.WithInputPrompt(cfg.InputPrompt))
	}
	if cfg.MaxSteps > 0 {
		opts = append(opts, vm.WithMaxSteps(cfg.MaxSteps))
	}
	if cfg.MaxCallDepth > 0 {
		opts = append(opts, vm.WithMaxCallDepth(cfg.MaxCallDepth))
	}
	if cfg.Trace {
		opts = append(opts, vm.WithTrace(traceTo(stderr)))
	}

	machine := vm.New(prog, opts...)
	err = machine.Run(ctx)
	commonlog.GetLogger("lalg").Infof("%s: %s", path, machine.Stats())
	return err
}

// traceTo prints one line per executed instruction.
func traceTo(w io.Writer) vm.TraceHook {
	return func(t vm.TraceInfo) {
		line := ""
		if t.SourceLine > 0 {
			line = fmt.Sprintf("  ; line %d", t.SourceLine)
		}
		fmt.Fprintf(w, "%5d  %-14s sp=%d fp=%d depth=%d%s\n",
			t.Addr, t.Instr, t.StackDepth, t.FramePointer, t.CallDepth, line)
	}
}
