// Package doctest runs example suites written in Markdown.
//
// A suite is a Markdown file whose "Test: <name>" headings each start a
// case. The fenced code blocks that follow a heading belong to its case:
//
//	lalg           the program (required, exactly one)
//	input          whitespace-separated numbers read by input()
//	output         expected printed lines
//	bytecode       expected serialized program
//	compile-error  expected substring of the compile error
//	runtime-error  expected substring of the runtime error
//
// Fences without a language are prose and are ignored.
package doctest

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Fence is the language tag of a code fence in a suite.
type Fence string

const (
	FenceSource       Fence = "lalg"
	FenceInput        Fence = "input"
	FenceOutput       Fence = "output"
	FenceBytecode     Fence = "bytecode"
	FenceCompileError Fence = "compile-error"
	FenceRuntimeError Fence = "runtime-error"
)

const headingPrefix = "Test: "

// Expectation is one assertion fence of a case.
type Expectation struct {
	Kind Fence
	Text string // fence content without the trailing newline
	Line int    // line of the fence's first content line in the suite
}

// Case is a single example extracted from a suite.
type Case struct {
	Name   string
	Line   int // line of the heading
	Source string
	Input  []float64
	Expect []Expectation
}

// Expectation returns the case's expectation of the given kind.
func (c *Case) Expectation(kind Fence) (Expectation, bool) {
	for _, e := range c.Expect {
		if e.Kind == kind {
			return e, true
		}
	}
	return Expectation{}, false
}

// ExtractFile reads a suite from disk.
func ExtractFile(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cases, err := Extract(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Extract parses a Markdown suite and returns its cases in document order.
func Extract(markdown string) ([]Case, error) {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var (
		cases   []Case
		current *Case
		hasIn   bool
	)
	finish := func() error {
		if current == nil {
			return nil
		}
		if err := validate(current); err != nil {
			return err
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, source)
			if !strings.HasPrefix(heading, headingPrefix) {
				return ast.WalkContinue, nil
			}
			if err := finish(); err != nil {
				return ast.WalkStop, err
			}
			current = &Case{
				Name: strings.TrimSpace(strings.TrimPrefix(heading, headingPrefix)),
				Line: lineOf(n, source),
			}
			hasIn = false

		case *ast.FencedCodeBlock:
			lang := Fence(n.Language(source))
			if lang == "" {
				return ast.WalkContinue, nil
			}
			line := lineOf(n, source)
			if !known(lang) {
				return ast.WalkStop, fmt.Errorf("line %d: unknown fence language %q", line, lang)
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test", line, lang)
			}
			content := fenceContent(n, source)

			switch lang {
			case FenceSource:
				if current.Source != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple lalg fences in test %q", line, current.Name)
				}
				current.Source = content
			case FenceInput:
				if hasIn {
					return ast.WalkStop, fmt.Errorf("line %d: multiple input fences in test %q", line, current.Name)
				}
				values, err := parseInput(content)
				if err != nil {
					return ast.WalkStop, fmt.Errorf("line %d: %w", line, err)
				}
				current.Input = values
				hasIn = true
			default:
				if _, dup := current.Expectation(lang); dup {
					return ast.WalkStop, fmt.Errorf("line %d: multiple %s fences in test %q", line, lang, current.Name)
				}
				current.Expect = append(current.Expect, Expectation{
					Kind: lang,
					Text: strings.TrimRight(content, "\n"),
					Line: line,
				})
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return cases, nil
}

func known(f Fence) bool {
	switch f {
	case FenceSource, FenceInput, FenceOutput, FenceBytecode, FenceCompileError, FenceRuntimeError:
		return true
	}
	return false
}

func validate(c *Case) error {
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("test %q has no lalg fence", c.Name)
	}
	if len(c.Expect) == 0 {
		return fmt.Errorf("test %q has no expectation fences", c.Name)
	}
	if _, ok := c.Expectation(FenceCompileError); !ok {
		return nil
	}
	for _, e := range c.Expect {
		if e.Kind != FenceCompileError {
			return fmt.Errorf("test %q expects a compile error and %s", c.Name, e.Kind)
		}
	}
	return nil
}

func parseInput(content string) ([]float64, error) {
	var values []float64
	for _, field := range strings.Fields(content) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input value %q", field)
		}
		values = append(values, v)
	}
	return values, nil
}

// nodeText concatenates the text segments below node.
func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// lineOf returns the 1-based line of the node's first content line.
func lineOf(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	start := node.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte{'\n'}) + 1
}
