package parser

import (
	"strings"

	"github.com/funvibe/torrentrpc/internal/object"
)

// Node is an argument expression of a command call.
type Node interface {
	String() string
	node()
}

// Literal is a plain or quoted text argument.
type Literal struct {
	Value object.Value
}

// ListNode is a braced list: {a,b,{c}}.
type ListNode struct {
	Items []Node
}

// Call is a command invocation. At statement level it is a whole statement;
// as an argument it is a nested $name=arg call evaluated before its parent.
type Call struct {
	Name string
	Args []Node
}

func (*Literal) node()  {}
func (*ListNode) node() {}
func (*Call) node()     {}

func (l *Literal) String() string { return l.Value.Inspect() }

func (l *ListNode) String() string {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (c *Call) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = arg.String()
	}
	return c.Name + "=" + strings.Join(parts, ",")
}

// Script is a sequence of statements separated by ';' or newlines.
type Script []*Call

func (s Script) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ;")
}
