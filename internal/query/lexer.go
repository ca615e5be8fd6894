package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/codescope/pkg/types"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokField
	tokDirective
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokWord, tokString:
		return "term"
	case tokField:
		return "field"
	case tokDirective:
		return "directive"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "token"
}

// token is one lexeme. name holds the field or engine name, value the term.
type token struct {
	kind   tokenKind
	name   string
	value  string
	offset int
}

func syntaxError(offset int, format string, args ...any) error {
	return &types.QuerySyntaxError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func isSpace(r rune) bool { return unicode.IsSpace(r) }

// wordEnd reports whether r terminates a bare word
func wordEnd(r rune) bool {
	return isSpace(r) || r == '(' || r == ')' || r == '"'
}

func isName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

type lexer struct {
	in   string
	pos  int
	toks []token
}

func lex(in string) ([]token, error) {
	l := &lexer{in: in}
	for {
		l.skipSpace()
		if l.pos >= len(in) {
			l.toks = append(l.toks, token{kind: tokEOF, offset: len(in)})
			return l.toks, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.in) {
		r, size := utf8.DecodeRuneInString(l.in[l.pos:])
		if !isSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) emit(t token) { l.toks = append(l.toks, t) }

func (l *lexer) next() error {
	start := l.pos
	switch l.in[l.pos] {
	case '(':
		l.pos++
		l.emit(token{kind: tokLParen, offset: start})
		return nil
	case ')':
		l.pos++
		l.emit(token{kind: tokRParen, offset: start})
		return nil
	case '"':
		s, err := l.quoted()
		if err != nil {
			return err
		}
		l.emit(token{kind: tokString, value: s, offset: start})
		return nil
	}

	// name part, up to the first colon
	end := l.pos
	for end < len(l.in) {
		r, size := utf8.DecodeRuneInString(l.in[end:])
		if wordEnd(r) || r == ':' {
			break
		}
		end += size
	}
	head := l.in[l.pos:end]
	hasColon := end < len(l.in) && l.in[end] == ':'

	if strings.HasPrefix(head, "@") {
		if !hasColon || !isName(head[1:]) {
			return syntaxError(start, "engine directive must look like @engine:value")
		}
		l.pos = end + 1
		v, err := l.value(head[1:])
		if err != nil {
			return err
		}
		l.emit(token{kind: tokDirective, name: head[1:], value: v, offset: start})
		return nil
	}
	if hasColon && isName(head) {
		l.pos = end + 1
		v, err := l.value(head)
		if err != nil {
			return err
		}
		l.emit(token{kind: tokField, name: head, value: v, offset: start})
		return nil
	}

	word := l.word()
	switch word {
	case "AND":
		l.emit(token{kind: tokAnd, offset: start})
	case "OR":
		l.emit(token{kind: tokOr, offset: start})
	case "NOT":
		l.emit(token{kind: tokNot, offset: start})
	default:
		l.emit(token{kind: tokWord, value: word, offset: start})
	}
	return nil
}

// word consumes a bare word, colons included
func (l *lexer) word() string {
	start := l.pos
	for l.pos < len(l.in) {
		r, size := utf8.DecodeRuneInString(l.in[l.pos:])
		if wordEnd(r) {
			break
		}
		l.pos += size
	}
	return l.in[start:l.pos]
}

// value consumes the value of a field or directive named name
func (l *lexer) value(name string) (string, error) {
	if l.pos < len(l.in) && l.in[l.pos] == '"' {
		return l.quoted()
	}
	start := l.pos
	if v := l.word(); v != "" {
		return v, nil
	}
	return "", syntaxError(start, "missing value for %s", name)
}

// quoted consumes a double-quoted string with Go escapes
func (l *lexer) quoted() (string, error) {
	start := l.pos
	i := l.pos + 1
	for i < len(l.in) {
		switch l.in[i] {
		case '\\':
			i += 2
			continue
		case '"':
			raw := l.in[start : i+1]
			s, err := strconv.Unquote(raw)
			if err != nil {
				return "", syntaxError(start, "invalid quoted string %s", raw)
			}
			l.pos = i + 1
			return s, nil
		}
		i++
	}
	return "", syntaxError(start, "unterminated string")
}
