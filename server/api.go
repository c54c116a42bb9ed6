package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/lalg/compiler"
	"github.com/chazu/lalg/vm"
)

// CompileRequest asks the service to compile a source program.
type CompileRequest struct {
	Source string `json:"source" cbor:"source"`
}

// CompileResponse carries the serialized program or the compile error.
type CompileResponse struct {
	Program []string               `json:"program,omitempty" cbor:"program,omitempty"`
	Listing string                 `json:"listing,omitempty" cbor:"listing,omitempty"`
	Symbols []compiler.Declaration `json:"symbols,omitempty" cbor:"symbols,omitempty"`
	Error   *ErrorInfo             `json:"error,omitempty" cbor:"error,omitempty"`
}

// RunRequest asks the service to execute a program. Exactly one of Source
// and Program must be set. Input supplies the numbers read by input().
type RunRequest struct {
	Source   string    `json:"source,omitempty" cbor:"source,omitempty"`
	Program  []string  `json:"program,omitempty" cbor:"program,omitempty"`
	Input    []float64 `json:"input,omitempty" cbor:"input,omitempty"`
	MaxSteps int64     `json:"maxSteps,omitempty" cbor:"maxSteps,omitempty"`
}

// RunResponse reports the outcome of a run.
type RunResponse struct {
	RunID  string     `json:"runId" cbor:"runId"`
	Output []string   `json:"output" cbor:"output"`
	Stats  *vm.Stats  `json:"stats,omitempty" cbor:"stats,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty" cbor:"error,omitempty"`
}

// ErrorInfo describes a compile, load, runtime or request error.
type ErrorInfo struct {
	Kind    string `json:"kind" cbor:"kind"` // lexical, syntax, semantic, load, runtime, request
	Message string `json:"message" cbor:"message"`
	Line    int    `json:"line,omitempty" cbor:"line,omitempty"`
	Column  int    `json:"column,omitempty" cbor:"column,omitempty"`
	Address *int   `json:"address,omitempty" cbor:"address,omitempty"`
}

var errNoProgram = errors.New("request needs exactly one of source or program")

func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var (
		cerr *compiler.Error
		rerr *vm.RuntimeError
		lerr *vm.LoadError
	)
	switch {
	case errors.As(err, &cerr):
		return &ErrorInfo{Kind: cerr.Kind.String(), Message: cerr.Error(), Line: cerr.Line, Column: cerr.Column}
	case errors.As(err, &rerr):
		addr := rerr.Addr
		return &ErrorInfo{Kind: "runtime", Message: rerr.Error(), Line: rerr.SourceLine, Address: &addr}
	case errors.As(err, &lerr):
		return &ErrorInfo{Kind: "load", Message: lerr.Error(), Line: lerr.Line}
	}
	return &ErrorInfo{Kind: "request", Message: err.Error()}
}

// compile builds the CompileResponse for src.
func compile(src string) *CompileResponse {
	res, err := compiler.Compile(src)
	if err != nil {
		return &CompileResponse{Error: errorInfo(err)}
	}
	return &CompileResponse{
		Program: programLines(res.Program),
		Listing: res.Program.Listing(),
		Symbols: res.Declarations,
	}
}

func programLines(p *vm.Program) []string {
	lines := make([]string, len(p.Code))
	for i, in := range p.Code {
		lines[i] = in.String()
	}
	return lines
}

// loadProgram compiles source or parses bytecode lines.
func loadProgram(source string, lines []string) (*vm.Program, error) {
	switch {
	case source != "" && len(lines) == 0:
		res, err := compiler.Compile(source)
		if err != nil {
			return nil, err
		}
		return res.Program, nil
	case source == "" && len(lines) > 0:
		return vm.ParseProgramString(strings.Join(lines, "\n"))
	}
	return nil, errNoProgram
}

// stepLimit clamps a requested step limit to the service's ceiling.
func (s *Server) stepLimit(requested int64) int64 {
	if requested <= 0 || requested > s.cfg.maxSteps {
		return s.cfg.maxSteps
	}
	return requested
}

// run compiles (or loads) and executes a request on the calling goroutine.
func (s *Server) run(ctx context.Context, req *RunRequest) *RunResponse {
	resp := &RunResponse{RunID: uuid.NewString(), Output: []string{}}

	prog, err := loadProgram(req.Source, req.Program)
	if err != nil {
		resp.Error = errorInfo(err)
		s.log.Infof("run %s rejected: %v", resp.RunID, err)
		return resp
	}

	var out bytes.Buffer
	machine := vm.New(prog,
		vm.WithOutput(&out),
		vm.WithInputSource(vm.ValuesInput(req.Input...)),
		vm.WithMaxSteps(s.stepLimit(req.MaxSteps)),
		vm.WithMaxCallDepth(s.cfg.maxCallDepth),
	)
	err = machine.Run(ctx)

	stats := machine.Stats()
	resp.Stats = &stats
	resp.Output = splitOutput(out.String())
	resp.Error = errorInfo(err)
	s.log.Infof("run %s: %s", resp.RunID, stats)
	return resp
}

func splitOutput(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// runOnPool executes req on a pool worker.
func (s *Server) runOnPool(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	v, err := s.pool.Do(ctx, func() (any, error) {
		return s.run(ctx, req), nil
	})
	if err != nil {
		return nil, fmt.Errorf("run not completed: %w", err)
	}
	return v.(*RunResponse), nil
}
