// Package manifest handles lalg.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "lalg.toml"

// Defaults used when a manifest is absent or leaves a field unset.
const (
	DefaultSource   = "main.lalg"
	DefaultOutput   = "main.lbc"
	DefaultAddr     = "localhost:8642"
	DefaultMaxSteps = 10_000_000
)

// Manifest represents a lalg.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Build   Build        `toml:"build"`
	VM      VMConfig     `toml:"vm"`
	Server  ServerConfig `toml:"server"`
	Log     LogConfig    `toml:"log"`

	// Dir is the directory containing the lalg.toml file (set at load time).
	// Empty for the default manifest.
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Build configures the source file and the bytecode output file.
type Build struct {
	Source string `toml:"source"`
	Output string `toml:"output"`
}

// VMConfig configures program execution.
type VMConfig struct {
	MaxSteps     int64  `toml:"max-steps"`
	MaxCallDepth int    `toml:"max-call-depth"`
	InputPrompt  string `toml:"input-prompt"`
	Trace        bool   `toml:"trace"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	Workers int    `toml:"workers"`
}

// LogConfig configures logging. The CLI logs only critical messages by
// default; each verbosity level adds errors, warnings, notices, info and
// debug in turn, the same as one -v flag.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when no lalg.toml is found.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a lalg.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.applyDefaults()
	return &m, nil
}

// FindAndLoad walks up from startDir to find a lalg.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	switch {
	case m.VM.MaxSteps < 0:
		return fmt.Errorf("vm.max-steps must not be negative")
	case m.VM.MaxCallDepth < 0:
		return fmt.Errorf("vm.max-call-depth must not be negative")
	case m.Server.Workers < 0:
		return fmt.Errorf("server.workers must not be negative")
	case m.Log.Verbosity < 0:
		return fmt.Errorf("log.verbosity must not be negative")
	}
	return nil
}

func (m *Manifest) applyDefaults() {
	if m.Build.Source == "" {
		m.Build.Source = DefaultSource
	}
	if m.Build.Output == "" {
		m.Build.Output = DefaultOutput
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Server.Workers == 0 {
		m.Server.Workers = 4
	}
}

// SourcePath returns the configured source file, relative to the manifest
// directory.
func (m *Manifest) SourcePath() string {
	return m.resolve(m.Build.Source)
}

// OutputPath returns the configured bytecode file, relative to the manifest
// directory.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Build.Output)
}

// LogFilePath returns the configured log file, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

// ServerMaxSteps is the step limit applied to runs submitted to the HTTP
// service. Unlike the CLI, the service never runs without a limit.
func (m *Manifest) ServerMaxSteps() int64 {
	if m.VM.MaxSteps > 0 {
		return m.VM.MaxSteps
	}
	return DefaultMaxSteps
}

func (m *Manifest) resolve(p string) string {
	if m.Dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
