package doctest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/lalg/compiler"
	"github.com/chazu/lalg/vm"
)

// DefaultMaxSteps bounds each case's run so a broken example cannot hang
// the suite.
const DefaultMaxSteps = 1_000_000

// Options configures case execution.
type Options struct {
	MaxSteps int64
}

// Result is the outcome of one case.
type Result struct {
	Case     Case
	Failures []string
	Output   string // what the program printed, if it ran
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// Report collects the results of a suite.
type Report struct {
	Name    string
	Results []Result
	Elapsed time.Duration
}

// Counts returns passed, failed and total case counts.
func (r *Report) Counts() (passed, failed, total int) {
	for i := range r.Results {
		if r.Results[i].Passed() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed, len(r.Results)
}

// OK reports whether every case passed.
func (r *Report) OK() bool {
	_, failed, _ := r.Counts()
	return failed == 0
}

// RunFile extracts and runs a suite file.
func RunFile(path string, opts Options) (*Report, error) {
	cases, err := ExtractFile(path)
	if err != nil {
		return nil, err
	}
	report := Run(cases, opts)
	report.Name = path
	return report, nil
}

// Run executes every case in order.
func Run(cases []Case, opts Options) *Report {
	log := commonlog.GetLogger("lalg.doctest")
	start := time.Now()
	report := &Report{}
	for _, c := range cases {
		res := RunCase(c, opts)
		if res.Passed() {
			log.Debugf("pass: %s", c.Name)
		} else {
			log.Debugf("FAIL: %s (%d failures)", c.Name, len(res.Failures))
		}
		report.Results = append(report.Results, res)
	}
	report.Elapsed = time.Since(start)
	return report
}

// RunCase compiles the case's program, serializes and reloads it the way
// the driver does, runs it and checks every expectation.
func RunCase(c Case, opts Options) Result {
	res := Result{Case: c}
	failf := func(format string, args ...any) {
		res.Failures = append(res.Failures, fmt.Sprintf(format, args...))
	}

	compiled, err := compiler.Compile(c.Source)
	if want, ok := c.Expectation(FenceCompileError); ok {
		switch {
		case err == nil:
			failf("expected compile error containing %q, program compiled", want.Text)
		case !strings.Contains(err.Error(), want.Text):
			failf("compile error %q does not contain %q", err.Error(), want.Text)
		}
		return res
	}
	if err != nil {
		failf("unexpected compile error: %v", err)
		return res
	}

	text := compiled.Program.String()
	if want, ok := c.Expectation(FenceBytecode); ok {
		if diff := compareLines(want.Text, text); diff != "" {
			failf("bytecode mismatch: %s", diff)
		}
	}

	_, wantOut := c.Expectation(FenceOutput)
	wantErr, wantRuntimeErr := c.Expectation(FenceRuntimeError)
	if !wantOut && !wantRuntimeErr {
		return res
	}

	prog, err := vm.ParseProgramString(text)
	if err != nil {
		failf("serialized program does not load: %v", err)
		return res
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	var out bytes.Buffer
	machine := vm.New(prog,
		vm.WithOutput(&out),
		vm.WithInputSource(vm.ValuesInput(c.Input...)),
		vm.WithMaxSteps(maxSteps),
		vm.WithLogger(commonlog.GetLogger("lalg.doctest")),
	)
	runErr := machine.Run(context.Background())
	res.Output = out.String()

	switch {
	case wantRuntimeErr && runErr == nil:
		failf("expected runtime error containing %q, program finished", wantErr.Text)
	case wantRuntimeErr && !strings.Contains(runErr.Error(), wantErr.Text):
		failf("runtime error %q does not contain %q", runErr.Error(), wantErr.Text)
	case !wantRuntimeErr && runErr != nil:
		failf("unexpected runtime error: %v", runErr)
	}

	if want, ok := c.Expectation(FenceOutput); ok {
		if diff := compareLines(want.Text, res.Output); diff != "" {
			failf("output mismatch: %s", diff)
		}
	}
	return res
}

// compareLines compares want and got line by line, ignoring trailing
// whitespace and blank lines at the end. It returns "" when they match.
func compareLines(want, got string) string {
	w := normalize(want)
	g := normalize(got)
	for i := 0; i < max(len(w), len(g)); i++ {
		var wl, gl string
		if i < len(w) {
			wl = w[i]
		}
		if i < len(g) {
			gl = g[i]
		}
		if wl != gl {
			return fmt.Sprintf("line %d: want %q, got %q", i+1, wl, gl)
		}
	}
	return ""
}

func normalize(s string) []string {
	lines := strings.Split(strings.TrimRight(s, " \t\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

// Write prints the report. Passing cases are listed only when verbose.
func (r *Report) Write(w io.Writer, verbose bool) {
	if r.Name != "" {
		fmt.Fprintf(w, "%s\n", r.Name)
	}
	for i := range r.Results {
		res := &r.Results[i]
		if res.Passed() {
			if verbose {
				fmt.Fprintf(w, "  \033[32mPASS\033[0m %s\n", res.Case.Name)
			}
			continue
		}
		fmt.Fprintf(w, "  \033[31mFAIL\033[0m %s (line %d)\n", res.Case.Name, res.Case.Line)
		for _, f := range res.Failures {
			fmt.Fprintf(w, "         %s\n", f)
		}
	}

	passed, failed, total := r.Counts()
	fmt.Fprintln(w, "\033[90m"+strings.Repeat("─", 40)+"\033[0m")
	switch {
	case failed > 0:
		fmt.Fprintf(w, "Results: \033[32m%d passed\033[0m, \033[31m%d failed\033[0m, %d total (%s)\n",
			passed, failed, total, r.Elapsed.Round(time.Millisecond))
	case total > 0:
		fmt.Fprintf(w, "Results: \033[32m%d passed\033[0m, %d total (%s)\n",
			passed, total, r.Elapsed.Round(time.Millisecond))
	default:
		fmt.Fprintln(w, "No tests found.")
	}
}
