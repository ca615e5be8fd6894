package query

// searchFields run an engine; the rest filter
var searchFields = map[string]bool{
	"symbol":   true,
	"text":     true,
	"regex":    true,
	"fuzzy":    true,
	"semantic": true,
	"hybrid":   true,
	"diff":     true,
}

var filterFields = map[string]bool{
	"file": true,
	"path": true,
	"lang": true,
	"kind": true,
}

// directiveEngines are the engines @engine: may name
var directiveEngines = map[string]bool{
	"symbol":   true,
	"text":     true,
	"regex":    true,
	"fuzzy":    true,
	"semantic": true,
	"hybrid":   true,
	"similar":  true,
	"diff":     true,
}

// IsFilter reports whether the field named name filters rather than searches
func IsFilter(name string) bool { return filterFields[name] }

type parser struct {
	toks  []token
	pos   int
	notAt map[*Not]int
}

// Parse turns query text into an AST. Failures are *types.QuerySyntaxError
// carrying the byte offset where parsing stopped.
func Parse(input string) (Node, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, notAt: make(map[*Not]int)}
	if p.peek().kind == tokEOF {
		return nil, syntaxError(0, "empty query")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxError(t.offset, "unexpected %s", t.kind)
	}
	if err := checkNot(n, false, p.notAt); err != nil {
		return nil, err
	}
	return n, nil
}

// MustParse is Parse for queries known to be valid
func MustParse(input string) Node {
	n, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return n
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokAnd:
			p.advance()
		case tokWord, tokString, tokField, tokDirective, tokNot, tokLParen:
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if t := p.peek(); t.kind == tokNot {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n := &Not{Operand: operand}
		p.notAt[n] = t.offset
		return n, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.advance()
	switch t.kind {
	case tokLParen:
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.peek(); c.kind != tokRParen {
			return nil, syntaxError(c.offset, "expected ')' to close '(' at offset %d", t.offset)
		}
		p.advance()
		return n, nil
	case tokWord, tokString:
		return &Term{Value: t.value}, nil
	case tokField:
		if !searchFields[t.name] && !filterFields[t.name] {
			return nil, syntaxError(t.offset, "unknown field %q", t.name)
		}
		return &Field{Name: t.name, Value: t.value}, nil
	case tokDirective:
		if !directiveEngines[t.name] {
			return nil, syntaxError(t.offset, "unknown engine %q", t.name)
		}
		return &Directive{Engine: t.name, Value: t.value}, nil
	case tokEOF:
		return nil, syntaxError(t.offset, "unexpected end of query, expected a term")
	}
	return nil, syntaxError(t.offset, "unexpected %s", t.kind)
}

// checkNot enforces that a Not only appears as the right operand of an And.
// allowed reports whether n sits in that position.
func checkNot(n Node, allowed bool, notAt map[*Not]int) error {
	switch n := n.(type) {
	case *Not:
		if !allowed {
			return syntaxError(notAt[n], "NOT is only allowed as the right operand of AND")
		}
		return checkNot(n.Operand, false, notAt)
	case *And:
		if err := checkNot(n.Left, false, notAt); err != nil {
			return err
		}
		return checkNot(n.Right, true, notAt)
	case *Or:
		if err := checkNot(n.Left, false, notAt); err != nil {
			return err
		}
		return checkNot(n.Right, false, notAt)
	}
	return nil
}
