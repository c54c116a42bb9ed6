package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"print(tot", protocol.Position{Line: 0, Character: 9}, "tot"},
		{"tot", protocol.Position{Line: 0, Character: 3}, "tot"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"x = 1\nwhile x", protocol.Position{Line: 1, Character: 7}, "x"},
		{"hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"abc", protocol.Position{Line: 0, Character: 40}, "abc"},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"hello world", protocol.Position{Line: 0, Character: 3}, "hello"},
		{"hello world", protocol.Position{Line: 0, Character: 5}, "hello"},
		{"hello world", protocol.Position{Line: 0, Character: 8}, "world"},
		{"", protocol.Position{Line: 0, Character: 0}, ""},
		{"first\nsecond", protocol.Position{Line: 1, Character: 3}, "second"},
		{"my_var = 1", protocol.Position{Line: 0, Character: 3}, "my_var"},
		{"single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"a + b", protocol.Position{Line: 0, Character: 2}, ""},
	}
	for _, tc := range tests {
		if got := extractWord(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestFindWord(t *testing.T) {
	tests := []struct {
		line, word string
		want       int
	}{
		{"def add(a, b):", "add", 4},
		{"def add(a, b):", "a", 8},
		{"total = subtotal", "total", 0},
		{"subtotal = total", "total", 11},
		{"subtotal", "total", -1},
	}
	for _, tc := range tests {
		if got := findWord(tc.line, tc.word); got != tc.want {
			t.Errorf("findWord(%q, %q) = %d, want %d", tc.line, tc.word, got, tc.want)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	if p := boolPtr(true); p == nil || !*p {
		t.Errorf("boolPtr(true) = %v", p)
	}
	if p := boolPtr(false); p == nil || *p {
		t.Errorf("boolPtr(false) = %v", p)
	}
}

// ---------------------------------------------------------------------------
// Analysis-backed features (complete, hover, definition, references)
// ---------------------------------------------------------------------------

const lspSample = `total = 0
def add(a, b):
    s = a + b
    print(s)
add(total, 2)
print(total)
`

const sampleURI = protocol.DocumentUri("file:///sample.lalg")

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Label
	}
	return out
}

func TestLSP_Complete(t *testing.T) {
	doc := analyze(lspSample)

	items := complete(doc, "a")
	if got := strings.Join(labels(items), ","); got != "a,add" {
		t.Errorf("complete(a) = %s, want a,add", got)
	}
	for _, it := range items {
		if it.Label == "add" && *it.Kind != protocol.CompletionItemKindFunction {
			t.Errorf("add kind = %v, want function", *it.Kind)
		}
		if it.Label == "a" && *it.Detail != "param in add" {
			t.Errorf("a detail = %q", *it.Detail)
		}
	}

	if got := labels(complete(doc, "pr")); len(got) != 1 || got[0] != "print" {
		t.Errorf("complete(pr) = %v, want [print]", got)
	}

	all := labels(complete(doc, ""))
	for _, want := range []string{"def", "while", "input", "total", "add", "s"} {
		found := false
		for _, l := range all {
			if l == want {
				found = true
			}
		}
		if !found {
			t.Errorf("complete(\"\") missing %s: %v", want, all)
		}
	}
}

func TestLSP_Hover(t *testing.T) {
	doc := analyze(lspSample)

	h := hover(doc, "total")
	if h == nil {
		t.Fatal("hover(total) = nil")
	}
	text := h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(text, "**total**") || !strings.Contains(text, "global var, address 0, line 1") {
		t.Errorf("hover(total) = %q", text)
	}

	h = hover(doc, "s")
	if h == nil {
		t.Fatal("hover(s) = nil")
	}
	text = h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(text, "var in `add`, frame offset 2, line 3") {
		t.Errorf("hover(s) = %q", text)
	}

	h = hover(doc, "add")
	if h == nil || !strings.Contains(h.Contents.(protocol.MarkupContent).Value, "function, entry 5, line 2") {
		t.Errorf("hover(add) = %+v", h)
	}

	if hover(doc, "nothing") != nil {
		t.Error("hover for unknown word should be nil")
	}
}

func TestLSP_Definition(t *testing.T) {
	doc := analyze(lspSample)

	locs := definition(doc, sampleURI, "add")
	if len(locs) != 1 {
		t.Fatalf("definition(add) = %v", locs)
	}
	r := locs[0].Range
	if locs[0].URI != sampleURI || r.Start.Line != 1 || r.Start.Character != 4 || r.End.Character != 7 {
		t.Errorf("definition(add) = %+v", locs[0])
	}

	locs = definition(doc, sampleURI, "b")
	if len(locs) != 1 || locs[0].Range.Start.Line != 1 || locs[0].Range.Start.Character != 11 {
		t.Errorf("definition(b) = %+v", locs)
	}

	if locs := definition(doc, sampleURI, "nothing"); len(locs) != 0 {
		t.Errorf("definition(nothing) = %v", locs)
	}
}

func TestLSP_References(t *testing.T) {
	doc := analyze(lspSample)
	locs := references(doc, sampleURI, "total")
	want := []protocol.Position{{Line: 0, Character: 0}, {Line: 4, Character: 4}, {Line: 5, Character: 6}}
	if len(locs) != len(want) {
		t.Fatalf("references(total) = %v", locs)
	}
	for i, loc := range locs {
		if loc.Range.Start != want[i] {
			t.Errorf("reference %d at %+v, want %+v", i, loc.Range.Start, want[i])
		}
	}

	if locs := references(doc, sampleURI, "nothing"); len(locs) != 0 {
		t.Errorf("references(nothing) = %v", locs)
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestLSP_DiagnoseClean(t *testing.T) {
	if d := diagnose(analyze(lspSample)); len(d) != 0 {
		t.Errorf("diagnostics for valid program = %+v", d)
	}
}

func TestLSP_DiagnoseError(t *testing.T) {
	doc := analyze("x = 1\nprint(y)\n")
	d := diagnose(doc)
	if len(d) != 1 {
		t.Fatalf("diagnostics = %+v, want one", d)
	}
	if d[0].Range.Start.Line != 1 || d[0].Range.Start.Character != 6 {
		t.Errorf("range = %+v, want line 1 char 6", d[0].Range)
	}
	if !strings.Contains(d[0].Message, "undeclared variable y") {
		t.Errorf("message = %q", d[0].Message)
	}
	if *d[0].Severity != protocol.DiagnosticSeverityError || *d[0].Source != lspName {
		t.Errorf("diagnostic = %+v", d[0])
	}

	// Declarations made before the error are still available.
	if hover(doc, "x") == nil {
		t.Error("hover(x) lost after compile error")
	}
}

// ---------------------------------------------------------------------------
// Document store
// ---------------------------------------------------------------------------

func TestLSP_DocumentStore(t *testing.T) {
	lsp := NewLSP()

	doc := lsp.update(sampleURI, lspSample)
	if doc.err != nil {
		t.Fatalf("analysis error: %v", doc.err)
	}
	if got := lsp.document(sampleURI); got != doc {
		t.Error("document not stored after update")
	}

	lsp.update(sampleURI, "print(\n")
	if got := lsp.document(sampleURI); got == nil || got.err == nil {
		t.Error("updated document should carry the compile error")
	}

	lsp.mu.Lock()
	delete(lsp.docs, string(sampleURI))
	lsp.mu.Unlock()
	if lsp.document(sampleURI) != nil {
		t.Error("document should be removed after close")
	}
}
