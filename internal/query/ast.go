package query

import (
	"strconv"
	"strings"
)

// Node is one element of a parsed query. Nodes are immutable.
type Node interface {
	String() string
	node()
}

// Term is a bare word or quoted string, searched with the hybrid engine
type Term struct {
	Value string
}

// Field is a name:value term
type Field struct {
	Name  string
	Value string
}

// Directive runs Value through an explicitly named engine (@engine:value)
type Directive struct {
	Engine string
	Value  string
}

// And intersects its operands, or subtracts Right when it is a Not
type And struct {
	Left, Right Node
}

// Or unites its operands
type Or struct {
	Left, Right Node
}

// Not negates Operand inside an enclosing And
type Not struct {
	Operand Node
}

func (*Term) node()      {}
func (*Field) node()     {}
func (*Directive) node() {}
func (*And) node()       {}
func (*Or) node()        {}
func (*Not) node()       {}

func (t *Term) String() string      { return quote(t.Value) }
func (f *Field) String() string     { return f.Name + ":" + quote(f.Value) }
func (d *Directive) String() string { return "@" + d.Engine + ":" + quote(d.Value) }

func (a *And) String() string {
	_, leftOr := a.Left.(*Or)
	return group(a.Left, leftOr) + " AND " + group(a.Right, isBinary(a.Right))
}

func (o *Or) String() string {
	_, rightOr := o.Right.(*Or)
	return o.Left.String() + " OR " + group(o.Right, rightOr)
}

func (n *Not) String() string {
	return "NOT " + group(n.Operand, isBinary(n.Operand))
}

func isBinary(n Node) bool {
	switch n.(type) {
	case *And, *Or:
		return true
	}
	return false
}

func group(n Node, paren bool) string {
	if paren {
		return "(" + n.String() + ")"
	}
	return n.String()
}

// quote renders v as a bare word when it would lex back to itself, and as
// a quoted string otherwise
func quote(v string) string {
	if v == "" || isKeyword(v) || v[0] == '@' || v[0] == '"' || strings.ContainsRune(v, ':') {
		return strconv.Quote(v)
	}
	for _, r := range v {
		if isSpace(r) || r == '(' || r == ')' || r == '"' || r == '\\' {
			return strconv.Quote(v)
		}
	}
	return v
}

func isKeyword(s string) bool {
	return s == "AND" || s == "OR" || s == "NOT"
}
