package parser

import (
	"testing"

	"github.com/funvibe/torrentrpc/internal/command"
)

func TestParseScript(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"foo=", `foo=`},
		{"foo", `foo=`},
		{"foo=a", `foo="a"`},
		{"foo=a,b", `foo="a","b"`},
		{"foo=a,,b", `foo="a","","b"`},
		{"foo=  a b  , c", `foo="a b","c"`},
		{`foo="a, b;c"`, `foo="a, b;c"`},
		{`foo="say \"hi\""`, `foo="say \"hi\""`},
		{`foo=""`, `foo=""`},
		{"foo={a,b}", `foo={"a","b"}`},
		{"foo={}", `foo={}`},
		{"foo={a,{b,c}},d", `foo={"a",{"b","c"}},"d"`},
		{"foo=$bar=", `foo=bar=`},
		{"foo=$bar=x,y", `foo=bar="x","y"`},
		{"foo=$bar={x,y}", `foo=bar={"x","y"}`},
		{"foo=$bar=$baz=", `foo=bar=baz=`},
		{"foo=a=b", `foo="a=b"`},
		{"foo=a = b", `foo="a = b"`},
		{"foo=x$y", `foo="x$y"`},
		{"a= ; b=1", `a= ;b="1"`},
		{"a=\nb=1\n", `a= ;b="1"`},
		{";;a=;;", `a=`},
		{"# comment\na=1\n  # indented\nb=2", `a="1" ;b="2"`},
		{"a=x#y", `a="x#y"`},
	}

	for _, tt := range tests {
		script, err := Parse(tt.input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", tt.input, err)
			continue
		}
		if got := script.String(); got != tt.expected {
			t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.expected)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\n", "# only a comment"} {
		script, err := Parse(input)
		if err != nil {
			t.Errorf("Parse(%q) error: %v", input, err)
		}
		if len(script) != 0 {
			t.Errorf("Parse(%q) = %d statements, want 0", input, len(script))
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		`foo="unterminated`,
		"foo={a,b",
		"foo=a}",
		"=a",
		"{a}",
		"foo=$",
		`foo=$"x"`,
		"my command=1",
		"foo=a{b}",
	}

	for _, input := range tests {
		_, err := Parse(input)
		if err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
			continue
		}
		if !command.IsInputError(err) {
			t.Errorf("Parse(%q) error %v is not an input error", input, err)
		}
	}
}

func TestNestedCallShape(t *testing.T) {
	script, err := Parse("print=$cat={a,b},c")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(script) != 1 || len(script[0].Args) != 2 {
		t.Fatalf("unexpected script %s", script)
	}
	nested, ok := script[0].Args[0].(*Call)
	if !ok {
		t.Fatalf("first argument is %T, want *Call", script[0].Args[0])
	}
	if nested.Name != "cat" || len(nested.Args) != 1 {
		t.Errorf("nested call = %s", nested)
	}
	if _, ok := nested.Args[0].(*ListNode); !ok {
		t.Errorf("nested argument is %T, want *ListNode", nested.Args[0])
	}
}

func TestTokenPositions(t *testing.T) {
	l := NewLexer("a=b\nc")
	expected := []struct {
		typ  TokenType
		line int
		col  int
	}{
		{WORD, 1, 1},
		{ASSIGN, 1, 2},
		{WORD, 1, 3},
		{SEMICOLON, 1, 4},
		{WORD, 2, 1},
		{EOF, 2, 2},
	}

	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want.typ || tok.Line != want.line || tok.Column != want.col {
			t.Errorf("token %d = %s at %d:%d, want %s at %d:%d",
				i, tok.Type, tok.Line, tok.Column, want.typ, want.line, want.col)
		}
	}
}
