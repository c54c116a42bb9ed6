package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/lalg/vm"
)

func compileProgram(t *testing.T, src string) *vm.Program {
	t.Helper()
	res, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile error: %v\nsource:\n%s", err, src)
	}
	return res.Program
}

func listing(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParseIfElse(t *testing.T) {
	src := `a = 5
b = 10
if a < b:
    print(a)
else:
    print(b)
`
	want := listing(
		"INPP",
		"ALME 1",
		"CRCT 5.0",
		"ARMZ 0",
		"ALME 1",
		"CRCT 10.0",
		"ARMZ 1",
		"CRVL 0",
		"CRVL 1",
		"CMME",
		"DSVF 14",
		"CRVL 0",
		"IMPR",
		"DSVI 16",
		"CRVL 1",
		"IMPR",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseIfWithoutElse(t *testing.T) {
	src := "x = 1\nif x == 1:\n    print(x)\nprint(0)\n"
	prog := compileProgram(t, src)

	// DSVF targets the instruction right after the then-block.
	want := listing(
		"INPP",
		"ALME 1",
		"CRCT 1.0",
		"ARMZ 0",
		"CRVL 0",
		"CRCT 1.0",
		"CMIG",
		"DSVF 10",
		"CRVL 0",
		"IMPR",
		"CRCT 0.0",
		"IMPR",
		"PARA",
	)
	if got := prog.String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseWhile(t *testing.T) {
	src := `i = 0
while i < 3:
    print(i)
    i = i + 1
`
	want := listing(
		"INPP",
		"ALME 1",
		"CRCT 0.0",
		"ARMZ 0",
		"CRVL 0",
		"CRCT 3.0",
		"CMME",
		"DSVF 15",
		"CRVL 0",
		"IMPR",
		"CRVL 0",
		"CRCT 1.0",
		"SOMA",
		"ARMZ 0",
		"DSVI 4",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseFunctionWithoutParameters(t *testing.T) {
	src := `def greet():
    print(7)
greet()
greet()
`
	want := listing(
		"INPP",
		"DSVI 6",
		"ENPR",
		"CRCT 7.0",
		"IMPR",
		"RTPR",
		"PUSHER 8",
		"CHPR 2",
		"PUSHER 10",
		"CHPR 2",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseParametersStoredInReverse(t *testing.T) {
	src := `def add(a, b):
    print(a + b)
add(2, 3)
`
	want := listing(
		"INPP",
		"DSVI 10",
		"ENPR",
		"AMREL 1",
		"AMREL 0",
		"CREL 0",
		"CREL 1",
		"SOMA",
		"IMPR",
		"RTPR",
		"PUSHER 14",
		"CRCT 2.0",
		"CRCT 3.0",
		"CHPR 2",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseAssignmentInFunctionShadowsGlobal(t *testing.T) {
	src := `x = 1
def f():
    x = 2
    print(x)
f()
print(x)
`
	want := listing(
		"INPP",
		"ALME 1",
		"CRCT 1.0",
		"ARMZ 0",
		"DSVI 12",
		"ENPR",
		"ALME 1",
		"CRCT 2.0",
		"AMREL 0",
		"CREL 0",
		"IMPR",
		"RTPR",
		"PUSHER 14",
		"CHPR 5",
		"CRVL 0",
		"IMPR",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseFunctionReadsGlobal(t *testing.T) {
	src := "g = 4\ndef f():\n    print(g)\nf()\n"
	prog := compileProgram(t, src)
	found := false
	for _, in := range prog.Code {
		if in.Op == vm.OpCRVL && in.Arg.Int == 0 {
			found = true
		}
		if in.Op == vm.OpCREL {
			t.Errorf("global read compiled as local load: %s", in)
		}
	}
	if !found {
		t.Errorf("no CRVL 0 in\n%s", prog)
	}
}

func TestParseOperatorPrecedence(t *testing.T) {
	src := "x = 1 + 2 * 3 - (4 - 5) / 6\n"
	want := listing(
		"INPP",
		"ALME 1",
		"CRCT 1.0",
		"CRCT 2.0",
		"CRCT 3.0",
		"MULT",
		"SOMA",
		"CRCT 4.0",
		"CRCT 5.0",
		"SUBT",
		"CRCT 6.0",
		"DIVI",
		"SUBT",
		"ARMZ 0",
		"PARA",
	)
	if got := compileProgram(t, src).String(); got != want {
		t.Errorf("bytecode =\n%s\nwant\n%s", got, want)
	}
}

func TestParseRelationalOperators(t *testing.T) {
	tests := []struct {
		op   string
		want vm.Opcode
	}{
		{"==", vm.OpCMIG},
		{"!=", vm.OpCMDG},
		{">=", vm.OpCMAI},
		{"<=", vm.OpCPMI},
		{">", vm.OpCMMA},
		{"<", vm.OpCMME},
	}

	for _, tc := range tests {
		prog := compileProgram(t, "if 1 "+tc.op+" 2:\n  print(1)\n")
		// INPP CRCT CRCT <cmp> DSVF
		if got := prog.Code[3].Op; got != tc.want {
			t.Errorf("%s compiled to %s, want %s", tc.op, got, tc.want)
		}
	}
}

func TestParseInput(t *testing.T) {
	prog := compileProgram(t, "n = input()\nprint(n)\n")
	if prog.Code[2].Op != vm.OpLEIT {
		t.Errorf("instruction 2 = %s, want LEIT", prog.Code[2])
	}
}

func TestParseNestedBlocks(t *testing.T) {
	src := `i = 0
while i < 4:
    if i == 2:
        print(100)
    else:
        print(i)
    i = i + 1
print(i)
`
	prog := compileProgram(t, src)
	code := prog.Code

	// Locate the loop's DSVF and back edge.
	var loopExit, backEdge int = -1, -1
	for addr, in := range code {
		if in.Op == vm.OpDSVI && in.Arg.Int == 4 {
			backEdge = addr
		}
	}
	if backEdge < 0 {
		t.Fatalf("no back edge to 4 in\n%s", prog)
	}
	loopExit = code[7].Arg.Int
	if code[7].Op != vm.OpDSVF || loopExit != backEdge+1 {
		t.Errorf("loop guard = %s, want DSVF %d", code[7], backEdge+1)
	}
	// The increment belongs to the loop body, after the if/else.
	if code[backEdge-1].Op != vm.OpARMZ {
		t.Errorf("instruction before back edge = %s, want ARMZ", code[backEdge-1])
	}
}

func TestParseRecursiveCall(t *testing.T) {
	src := `def down(n):
    if n > 0:
        print(n)
        down(n - 1)
down(3)
`
	prog := compileProgram(t, src)
	calls := 0
	for _, in := range prog.Code {
		if in.Op == vm.OpCHPR {
			calls++
			if in.Arg.Int != 2 {
				t.Errorf("CHPR target = %d, want 2", in.Arg.Int)
			}
		}
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	src := `"""header comment"""
x = 1

"""
multi
line
"""
while x < 2:

    """inside"""
    x = x + 1
print(x)
`
	compileProgram(t, src)
}

func TestParseBackpatchTargetsInRange(t *testing.T) {
	src := `def f(a):
    while a > 0:
        if a == 3:
            print(a)
        a = a - 1
x = 5
f(x)
if x > 1:
    print(1)
else:
    print(2)
`
	prog := compileProgram(t, src)
	for addr, in := range prog.Code {
		switch in.Op {
		case vm.OpDSVI, vm.OpDSVF, vm.OpCHPR, vm.OpPUSHER:
			if in.Arg.Int < 0 || in.Arg.Int > prog.Len() {
				t.Errorf("%d: %s targets outside program", addr, in)
			}
			if in.Arg.Int == 0 && in.Op != vm.OpCHPR {
				t.Errorf("%d: %s left unpatched", addr, in)
			}
		}
	}
}

// sumStackEffect adds the stack effects of code[from:to].
func sumStackEffect(t *testing.T, code []vm.Instruction, from, to int) int {
	t.Helper()
	sum := 0
	for _, in := range code[from:to] {
		info, ok := in.Op.Info()
		if !ok {
			t.Fatalf("unknown opcode %s", in.Op)
		}
		sum += info.StackEffect()
	}
	return sum
}

func TestExpressionStackBalance(t *testing.T) {
	exprs := []string{
		"1",
		"a",
		"a + 1",
		"a * (a - 2) / 3",
		"((a))",
		"1 + 2 + 3 + 4 * 5",
		"input()",
	}

	for _, e := range exprs {
		prog := compileProgram(t, "a = 2\nx = "+e+"\n")
		// INPP ALME CRCT ARMZ | ALME <expr> ARMZ PARA
		start := 5
		end := prog.Len() - 2
		if got := sumStackEffect(t, prog.Code, start, end); got != 1 {
			t.Errorf("expr %q: stack effect = %d, want 1", e, got)
		}
	}
}

func TestConditionStackBalance(t *testing.T) {
	conds := []string{
		"a < 1",
		"a + 1 >= a * 2",
		"(a) != 3 - a",
	}

	for _, c := range conds {
		prog := compileProgram(t, "a = 2\nif "+c+":\n    print(a)\n")
		start := 4 // after INPP ALME CRCT ARMZ
		end := -1
		for addr, in := range prog.Code {
			if in.Op == vm.OpDSVF {
				end = addr
				break
			}
		}
		if got := sumStackEffect(t, prog.Code, start, end); got != 1 {
			t.Errorf("condition %q: stack effect = %d, want 1", c, got)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
		line int
		msg  string
	}{
		{"undeclared variable", "print(y)\n", Semantic, 1, "undeclared variable y"},
		{"undeclared function", "x = 1\nf()\n", Semantic, 2, "undeclared function f"},
		{"missing expression", "x =\n", Syntax, 2, "expected an expression"},
		{"unknown character", "x = 5 $\n", Lexical, 1, "unrecognized character"},
		{"missing block", "if 1 < 2:\nprint(1)\n", Syntax, 2, "indented block"},
		{"unexpected indent", "if 1 < 2:\n    print(1)\n        print(2)\n", Syntax, 3, "unexpected indent"},
		{"missing comparison", "if 1:\n  print(1)\n", Syntax, 1, "comparison operator"},
		{"missing colon", "while 1 < 2\n  print(1)\n", Syntax, 2, "':'"},
		{"wrong arity", "def f(a):\n  print(a)\nf()\n", Semantic, 3, "takes 1 argument(s), got 0"},
		{"duplicate parameter", "def f(a, a):\n  print(a)\n", Semantic, 1, "duplicate parameter"},
		{"def after statements", "print(1)\ndef f():\n  print(2)\n", Syntax, 2, "end of input"},
		{"stray else", "x = 1\nelse:\n  print(x)\n", Syntax, 2, "end of input"},
		{"input inside expression", "x = input() + 1\n", Syntax, 1, "end of input"},
		{"unknown in block", "if 1 < 2:\n    print(1)\n    @\n", Lexical, 3, "unrecognized"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.src)
			if err == nil {
				t.Fatalf("Compile succeeded, want %s error", tc.kind)
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("error %T is not *Error", err)
			}
			if cerr.Kind != tc.kind {
				t.Errorf("kind = %s, want %s (%v)", cerr.Kind, tc.kind, err)
			}
			if cerr.Line != tc.line {
				t.Errorf("line = %d, want %d (%v)", cerr.Line, tc.line, err)
			}
			if !strings.Contains(cerr.Msg, tc.msg) {
				t.Errorf("message %q does not contain %q", cerr.Msg, tc.msg)
			}
		})
	}
}

func TestCompileResultDeclarations(t *testing.T) {
	res, err := Compile("a = 1\ndef f(p):\n  q = p\nb = 2\nf(a)\n")
	if err != nil {
		t.Fatal(err)
	}
	if res.Globals != 2 {
		t.Errorf("Globals = %d, want 2", res.Globals)
	}
	names := []string{}
	for _, d := range res.Declarations {
		names = append(names, d.Kind.String()+":"+d.Name)
	}
	want := "var:a function:f param:p var:q var:b"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("declarations = %s, want %s", got, want)
	}
}
