package parser

import (
	"strings"
	"unicode/utf8"
)

type TokenType int

const (
	ILLEGAL TokenType = iota
	EOF

	WORD   // unquoted run of text, surrounding blanks kept
	STRING // "quoted", escapes resolved

	ASSIGN    // =
	COMMA     // ,
	SEMICOLON // ; or newline
	LBRACE    // {
	RBRACE    // }
	DOLLAR    // $
)

func (t TokenType) String() string {
	switch t {
	case EOF:
		return "end of input"
	case WORD:
		return "word"
	case STRING:
		return "string"
	case ASSIGN:
		return "'='"
	case COMMA:
		return "','"
	case SEMICOLON:
		return "';'"
	case LBRACE:
		return "'{'"
	case RBRACE:
		return "'}'"
	case DOLLAR:
		return "'$'"
	}
	return "illegal"
}

type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
	// Spaced is set when blanks separate the token from the previous one.
	Spaced bool
}

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int
	column       int
	lineStart    bool // nothing but blanks seen since the last newline
	trailing     bool // the last word had trailing blanks trimmed
}

func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, lineStart: true}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		l.readPosition++
		l.column++
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *Lexer) NextToken() Token {
	spaced := l.skipBlanks() || l.trailing
	l.trailing = false

	line, col := l.line, l.column
	if l.atEnd() {
		return Token{Type: EOF, Line: line, Column: col}
	}

	var tok Token
	switch l.ch {
	case '=':
		tok = Token{Type: ASSIGN, Literal: "="}
	case ',':
		tok = Token{Type: COMMA, Literal: ","}
	case ';':
		tok = Token{Type: SEMICOLON, Literal: ";"}
	case '\n':
		l.readChar()
		l.lineStart = true
		return Token{Type: SEMICOLON, Literal: "\n", Line: line, Column: col, Spaced: spaced}
	case '{':
		tok = Token{Type: LBRACE, Literal: "{"}
	case '}':
		tok = Token{Type: RBRACE, Literal: "}"}
	case '$':
		tok = Token{Type: DOLLAR, Literal: "$"}
	case '"':
		str, ok := l.readString()
		l.lineStart = false
		if !ok {
			return Token{Type: ILLEGAL, Literal: "unterminated string", Line: line, Column: col}
		}
		return Token{Type: STRING, Literal: str, Line: line, Column: col, Spaced: spaced}
	default:
		l.lineStart = false
		return Token{Type: WORD, Literal: l.readWord(), Line: line, Column: col, Spaced: spaced}
	}

	l.lineStart = false
	l.readChar()
	tok.Line, tok.Column, tok.Spaced = line, col, spaced
	return tok
}

// skipBlanks skips spaces and tabs, and a whole '#' comment line when the
// '#' is the first non-blank character of the line. It reports whether
// anything was skipped.
func (l *Lexer) skipBlanks() bool {
	skipped := false
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '#' && l.lineStart:
			for !l.atEnd() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return skipped
		}
		skipped = true
	}
}

func isDelimiter(ch rune) bool {
	switch ch {
	case '=', ',', ';', '\n', '{', '}', '$', '"':
		return true
	}
	return false
}

func (l *Lexer) readWord() string {
	start := l.position
	for !l.atEnd() && !isDelimiter(l.ch) {
		l.readChar()
	}
	word := strings.TrimRight(l.input[start:l.position], " \t\r")
	l.trailing = len(word) != l.position-start
	return word
}

// readString reads a double quoted string. A backslash escapes the next
// character verbatim.
func (l *Lexer) readString() (string, bool) {
	var out strings.Builder
	l.readChar()
	for {
		if l.atEnd() {
			return out.String(), false
		}
		switch l.ch {
		case '"':
			l.readChar()
			return out.String(), true
		case '\\':
			l.readChar()
			if l.atEnd() {
				return out.String(), false
			}
		}
		out.WriteRune(l.ch)
		l.readChar()
	}
}
