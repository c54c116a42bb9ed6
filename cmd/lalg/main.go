// lalg compiles LALG programs to text stack bytecode and runs them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/tliron/kutil/util"

	"github.com/chazu/lalg/doctest"
	"github.com/chazu/lalg/manifest"
	"github.com/chazu/lalg/server"
)

// quietVerbosity is the commonlog verbosity used without -v: critical
// messages only, so runtime faults are reported once on stderr.
const quietVerbosity = -3

// countFlag is a boolean flag that counts how often it was given.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*c++
	} else {
		*c = 0
	}
	return nil
}

func (c *countFlag) IsBoolFlag() bool { return true }

func main() {
	var verbosity countFlag
	flag.Var(&verbosity, "v", "Increase log verbosity (repeatable)")
	compileOnly := flag.Bool("c", false, "Compile only, do not run the program")
	output := flag.String("o", "", "Bytecode output file (default from lalg.toml, else main.lbc)")
	runFile := flag.String("run", "", "Run an existing bytecode file instead of compiling")
	listing := flag.Bool("S", false, "Print the annotated program listing")
	symbols := flag.Bool("symbols", false, "Print declared variables and functions")
	trace := flag.Bool("trace", false, "Trace every executed instruction to stderr")
	maxSteps := flag.Int64("max-steps", 0, "Stop after this many instructions (0 uses lalg.toml, else no limit)")
	serveMode := flag.Bool("serve", false, "Start the HTTP compile/run service")
	addr := flag.String("addr", "", "Service address (used with -serve, default from lalg.toml)")
	lspMode := flag.Bool("lsp", false, "Run the language server on stdio")
	suite := flag.String("doctest", "", "Run a Markdown example suite")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lalg [options] [source.lalg]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the source to bytecode, writes it out, then loads and runs it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lalg prog.lalg              # Compile to main.lbc and run\n")
		fmt.Fprintf(os.Stderr, "  lalg -c -o prog.lbc prog.lalg  # Compile only\n")
		fmt.Fprintf(os.Stderr, "  lalg -run prog.lbc          # Run existing bytecode\n")
		fmt.Fprintf(os.Stderr, "  lalg -S -symbols -c prog.lalg  # Show listing and symbols\n")
		fmt.Fprintf(os.Stderr, "  lalg -doctest examples.md   # Run an example suite\n")
		fmt.Fprintf(os.Stderr, "\nServices:\n")
		fmt.Fprintf(os.Stderr, "  lalg -serve -addr :8642     # HTTP and WebSocket service\n")
		fmt.Fprintf(os.Stderr, "  lalg -lsp                   # Language server on stdio\n")
	}
	flag.Parse()

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		util.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	}

	commonlog.Initialize(quietVerbosity+int(verbosity)+m.Log.Verbosity, m.LogFilePath())
	log := commonlog.GetLogger("lalg")
	if m.Dir != "" {
		log.Infof("using %s", m.Dir)
	}

	switch {
	case *lspMode:
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(os.Stderr, "LSP error: %v\n", err)
			util.Exit(1)
		}
		util.Exit(0)

	case *serveMode:
		listen := m.Server.Addr
		if *addr != "" {
			listen = *addr
		}
		steps := m.ServerMaxSteps()
		if *maxSteps > 0 {
			steps = *maxSteps
		}
		srv := server.New(
			server.WithWorkers(m.Server.Workers),
			server.WithMaxSteps(steps),
			server.WithMaxCallDepth(m.VM.MaxCallDepth),
		)
		defer srv.Stop()
		if err := srv.ListenAndServe(listen); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			util.Exit(1)
		}
		util.Exit(0)

	case *suite != "":
		report, err := doctest.RunFile(*suite, doctest.Options{MaxSteps: *maxSteps})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			util.Exit(1)
		}
		report.Write(os.Stdout, verbosity > 0)
		if !report.OK() {
			util.Exit(1)
		}
		util.Exit(0)
	}

	cfg := buildConfig{
		Source:       m.SourcePath(),
		Output:       m.OutputPath(),
		Listing:      *listing,
		Symbols:      *symbols,
		Trace:        *trace || m.VM.Trace,
		MaxSteps:     m.VM.MaxSteps,
		MaxCallDepth: m.VM.MaxCallDepth,
		InputPrompt:  m.VM.InputPrompt,
	}
	if flag.NArg() > 0 {
		cfg.Source = flag.Arg(0)
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *maxSteps > 0 {
		cfg.MaxSteps = *maxSteps
	}

	path := *runFile
	if path == "" {
		if err := build(cfg, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			util.Exit(1)
		}
		if *compileOnly {
			util.Exit(0)
		}
		path = cfg.Output
	}

	if err := execute(context.Background(), path, cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		util.Exit(1)
	}
	util.Exit(0)
}
