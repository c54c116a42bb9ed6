package compiler

import (
	"fmt"
	"os"

	"github.com/chazu/lalg/vm"
	"github.com/tliron/commonlog"
)

// Result is the output of a successful compilation.
type Result struct {
	Program      *vm.Program
	Declarations []Declaration
	Globals      int // global addresses allocated
}

// Compile translates LALG source into a program. Errors are *Error.
func Compile(source string) (*Result, error) {
	log := commonlog.GetLogger("lalg.compiler")
	p := NewParser(source)
	prog, err := p.Parse()
	if err != nil {
		log.Debugf("compile failed: %v", err)
		return nil, err
	}
	res := &Result{
		Program:      prog,
		Declarations: p.syms.Declarations(),
		Globals:      p.syms.GlobalCount(),
	}
	log.Debugf("compiled %d instructions, %d globals", prog.Len(), res.Globals)
	return res, nil
}

// CompileFile reads and compiles a source file.
func CompileFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Compile(string(data))
}
