// Package parser turns command strings such as
//
//	method.insert=foo,simple,"print=hi" ; foo=
//
// into a Script of calls. Arguments are text, quoted strings, braced lists
// or nested $name=arg calls.
package parser

import (
	"fmt"
	"strings"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/object"
)

type Parser struct {
	l *Lexer

	curToken  Token
	peekToken Token
}

func New(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse is a shorthand for New(NewLexer(input)).ParseScript().
func Parse(input string) (Script, error) {
	return New(NewLexer(input)).ParseScript()
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, a ...interface{}) error {
	return command.NewInputError("Parse error at %d:%d: %s.", p.curToken.Line, p.curToken.Column, fmt.Sprintf(format, a...))
}

func (p *Parser) ParseScript() (Script, error) {
	var script Script

	for {
		for p.curTokenIs(SEMICOLON) {
			p.nextToken()
		}
		if p.curTokenIs(EOF) {
			return script, nil
		}

		call, err := p.parseCall(false)
		if err != nil {
			return nil, err
		}
		script = append(script, call)

		switch p.curToken.Type {
		case SEMICOLON, EOF:
		case ILLEGAL:
			return nil, p.errorf("%s", p.curToken.Literal)
		default:
			return nil, p.errorf("unexpected %s", p.curToken.Type)
		}
	}
}

func (p *Parser) parseCall(nested bool) (*Call, error) {
	if !p.curTokenIs(WORD) {
		if p.curTokenIs(ILLEGAL) {
			return nil, p.errorf("%s", p.curToken.Literal)
		}
		return nil, p.errorf("expected command name, got %s", p.curToken.Type)
	}
	name := p.curToken.Literal
	if strings.ContainsAny(name, " \t") {
		return nil, p.errorf("invalid command name %q", name)
	}
	call := &Call{Name: name}
	p.nextToken()

	if !p.curTokenIs(ASSIGN) {
		return call, nil
	}
	p.nextToken()

	if nested {
		if p.atArgEnd() {
			return call, nil
		}
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		call.Args = []Node{arg}
		return call, nil
	}

	if p.curTokenIs(SEMICOLON) || p.curTokenIs(EOF) {
		return call, nil
	}
	for {
		arg, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		if !p.curTokenIs(COMMA) {
			return call, nil
		}
		p.nextToken()
	}
}

// atArgEnd reports whether the current token ends an argument.
func (p *Parser) atArgEnd() bool {
	switch p.curToken.Type {
	case COMMA, SEMICOLON, RBRACE, EOF:
		return true
	}
	return false
}

func (p *Parser) parseArg() (Node, error) {
	switch p.curToken.Type {
	case LBRACE:
		return p.parseList()
	case DOLLAR:
		p.nextToken()
		return p.parseCall(true)
	case ILLEGAL:
		return nil, p.errorf("%s", p.curToken.Literal)
	}

	// Adjacent text pieces form one argument; '=' and '$' are plain text here.
	var text strings.Builder
	for {
		switch p.curToken.Type {
		case WORD, STRING, ASSIGN, DOLLAR:
			if p.curToken.Spaced && text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(p.curToken.Literal)
			p.nextToken()
			continue
		case ILLEGAL:
			return nil, p.errorf("%s", p.curToken.Literal)
		case LBRACE:
			return nil, p.errorf("unexpected %s", p.curToken.Type)
		}
		return &Literal{Value: object.String(text.String())}, nil
	}
}

func (p *Parser) parseList() (Node, error) {
	list := &ListNode{Items: []Node{}}
	p.nextToken()

	if p.curTokenIs(RBRACE) {
		p.nextToken()
		return list, nil
	}

	for {
		item, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)

		switch p.curToken.Type {
		case COMMA:
			p.nextToken()
		case RBRACE:
			p.nextToken()
			return list, nil
		default:
			return nil, p.errorf("expected ',' or '}', got %s", p.curToken.Type)
		}
	}
}
