package doctest

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestSuites(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.md"))
	be.Err(t, err, nil)
	be.True(t, len(files) > 0)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			cases, err := ExtractFile(file)
			be.Err(t, err, nil)
			be.True(t, len(cases) > 0)

			for _, c := range cases {
				t.Run(c.Name, func(t *testing.T) {
					res := RunCase(c, Options{})
					for _, f := range res.Failures {
						t.Errorf("line %d: %s", c.Line, f)
					}
				})
			}
		})
	}
}

const sampleSuite = "# Sample\n\nSome prose.\n\n```\nplain block\n```\n\n" +
	"## Test: first\n\n```lalg\nprint(1)\n```\n\n```output\n1\n```\n\n" +
	"## Other heading\n\n" +
	"## Test: second\n\n```lalg\nx = input()\nprint(x)\n```\n\n```input\n2 3.5\n```\n\n```output\n2\n```\n\n```bytecode\nINPP\n```\n"

func TestExtract(t *testing.T) {
	cases, err := Extract(sampleSuite)
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	be.Equal(t, cases[0].Name, "first")
	be.Equal(t, cases[0].Source, "print(1)\n")
	be.Equal(t, len(cases[0].Expect), 1)
	be.Equal(t, cases[0].Expect[0].Kind, FenceOutput)
	be.Equal(t, cases[0].Expect[0].Text, "1")

	be.Equal(t, cases[1].Name, "second")
	be.Equal(t, cases[1].Input, []float64{2, 3.5})
	be.Equal(t, len(cases[1].Expect), 2)
	bc, ok := cases[1].Expectation(FenceBytecode)
	be.True(t, ok)
	be.Equal(t, bc.Text, "INPP")
	_, ok = cases[1].Expectation(FenceCompileError)
	be.True(t, !ok)
}

func TestExtractLineNumbers(t *testing.T) {
	cases, err := Extract("intro\n\n## Test: one\n\n```lalg\nprint(1)\n```\n\n```output\n1\n```\n")
	be.Err(t, err, nil)
	be.Equal(t, cases[0].Line, 3)
	be.Equal(t, cases[0].Expect[0].Line, 10)
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want string
	}{
		{
			"fence outside test",
			"```lalg\nprint(1)\n```\n",
			"outside of a test",
		},
		{
			"unknown fence",
			"## Test: a\n\n```python\nprint(1)\n```\n",
			"unknown fence language",
		},
		{
			"no source",
			"## Test: a\n\n```output\n1\n```\n",
			"has no lalg fence",
		},
		{
			"no expectations",
			"## Test: a\n\n```lalg\nprint(1)\n```\n",
			"has no expectation fences",
		},
		{
			"two sources",
			"## Test: a\n\n```lalg\nprint(1)\n```\n\n```lalg\nprint(2)\n```\n",
			"multiple lalg fences",
		},
		{
			"two outputs",
			"## Test: a\n\n```lalg\nprint(1)\n```\n\n```output\n1\n```\n\n```output\n1\n```\n",
			"multiple output fences",
		},
		{
			"bad input",
			"## Test: a\n\n```lalg\nprint(1)\n```\n\n```input\n1 two\n```\n\n```output\n1\n```\n",
			`invalid input value "two"`,
		},
		{
			"compile error with output",
			"## Test: a\n\n```lalg\nprint(y)\n```\n\n```compile-error\ny\n```\n\n```output\n1\n```\n",
			"expects a compile error and output",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Extract(tc.md)
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), tc.want))
		})
	}
}

func TestRunCaseReportsFailures(t *testing.T) {
	tests := []struct {
		name string
		c    Case
		want string
	}{
		{
			"wrong output",
			Case{Source: "print(1)\n", Expect: []Expectation{{Kind: FenceOutput, Text: "2"}}},
			`output mismatch: line 1: want "2", got "1"`,
		},
		{
			"missing output line",
			Case{Source: "print(1)\n", Expect: []Expectation{{Kind: FenceOutput, Text: "1\n2"}}},
			`line 2: want "2", got ""`,
		},
		{
			"wrong bytecode",
			Case{Source: "print(1)\n", Expect: []Expectation{{Kind: FenceBytecode, Text: "INPP\nPARA"}}},
			"bytecode mismatch: line 2",
		},
		{
			"unexpected compile error",
			Case{Source: "print(y)\n", Expect: []Expectation{{Kind: FenceOutput, Text: ""}}},
			"unexpected compile error",
		},
		{
			"compile error expected",
			Case{Source: "print(1)\n", Expect: []Expectation{{Kind: FenceCompileError, Text: "oops"}}},
			"program compiled",
		},
		{
			"different compile error",
			Case{Source: "print(y)\n", Expect: []Expectation{{Kind: FenceCompileError, Text: "syntax"}}},
			"does not contain",
		},
		{
			"unexpected runtime error",
			Case{Source: "x = input()\n", Expect: []Expectation{{Kind: FenceOutput, Text: ""}}},
			"unexpected runtime error",
		},
		{
			"runtime error expected",
			Case{Source: "print(1)\n", Expect: []Expectation{{Kind: FenceRuntimeError, Text: "boom"}}},
			"program finished",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := RunCase(tc.c, Options{})
			be.True(t, !res.Passed())
			be.True(t, strings.Contains(strings.Join(res.Failures, "\n"), tc.want))
		})
	}
}

func TestRunCaseStepLimit(t *testing.T) {
	c := Case{
		Source: "x = 1\nwhile x > 0:\n    x = x + 1\n",
		Expect: []Expectation{{Kind: FenceRuntimeError, Text: "step limit of 500"}},
	}
	res := RunCase(c, Options{MaxSteps: 500})
	be.True(t, res.Passed())
}

func TestReport(t *testing.T) {
	cases := []Case{
		{Name: "good", Source: "print(1)\n", Expect: []Expectation{{Kind: FenceOutput, Text: "1"}}},
		{Name: "bad", Line: 7, Source: "print(1)\n", Expect: []Expectation{{Kind: FenceOutput, Text: "3"}}},
	}
	report := Run(cases, Options{})
	passed, failed, total := report.Counts()
	be.Equal(t, passed, 1)
	be.Equal(t, failed, 1)
	be.Equal(t, total, 2)
	be.True(t, !report.OK())

	var buf bytes.Buffer
	report.Write(&buf, false)
	out := buf.String()
	be.True(t, strings.Contains(out, "FAIL\033[0m bad (line 7)"))
	be.True(t, !strings.Contains(out, "good"))
	be.True(t, strings.Contains(out, "1 failed"))

	buf.Reset()
	report.Write(&buf, true)
	be.True(t, strings.Contains(buf.String(), "PASS\033[0m good"))
}

func TestCompareLines(t *testing.T) {
	be.Equal(t, compareLines("1\n2\n", "1\n2"), "")
	be.Equal(t, compareLines("1  \n2", "1\n2\n\n"), "")
	be.Equal(t, compareLines("", ""), "")
	be.Equal(t, compareLines("1", ""), `line 1: want "1", got ""`)
}
