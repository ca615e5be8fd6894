package parser

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// HeuristicParser extracts declarations from lines that begin with a
// declaration keyword. It is the fallback for languages without a
// structured parser and produces no call or binding facts.
type HeuristicParser struct{}

type declRule struct {
	re   *regexp.Regexp
	kind types.SymbolKind
}

// The name is capture group 1; the parameter list, when present, group 2;
// a declared return type, group 3.
var declRules = []declRule{
	{regexp.MustCompile(`^(?:pub(?:\([a-z]+\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+([A-Za-z_]\w*)\s*(?:<[^>]*>)?\s*\(([^)]*)\)?(?:\s*->\s*([^{;]+?)\s*(?:\{|;|\bwhere\b|$))?`), types.KindFunction},
	{regexp.MustCompile(`^func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\s*\(([^)]*)\)?(?:\s*->\s*([^{]+?)\s*(?:\{|$))?`), types.KindFunction},
	{regexp.MustCompile(`^(?:(?:public|private|internal|protected|open|override|suspend|inline)\s+)*fun\s+(?:<[^>]*>\s*)?([A-Za-z_]\w*)\s*\(([^)]*)\)?(?:\s*:\s*([^{=]+?)\s*(?:\{|=|$))?`), types.KindFunction},
	{regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)?(?:\s*->\s*([^:]+?)\s*:)?`), types.KindFunction},
	{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\*?\s+([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\(([^)]*)\)?(?:\s*:\s*([^{;]+?)\s*(?:\{|;|$))?`), types.KindFunction},
	{regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?(?:pub(?:\([a-z]+\))?\s+)?class\s+([A-Za-z_$][\w$]*)`), types.KindClass},
	{regexp.MustCompile(`^(?:pub(?:\([a-z]+\))?\s+)?struct\s+([A-Za-z_]\w*)`), types.KindStruct},
	{regexp.MustCompile(`^(?:export\s+)?(?:pub(?:\([a-z]+\))?\s+)?(?:interface|trait)\s+([A-Za-z_$][\w$]*)`), types.KindInterface},
	{regexp.MustCompile(`^(?:pub(?:\([a-z]+\))?\s+)?enum\s+([A-Za-z_]\w*)`), types.KindType},
	{regexp.MustCompile(`^impl(?:<[^>]*>)?\s+(?:[\w:]+\s+for\s+)?([A-Za-z_]\w*)`), types.KindType},
	{regexp.MustCompile(`^(?:export\s+)?(?:pub(?:\([a-z]+\))?\s+)?type\s+([A-Za-z_$][\w$]*)`), types.KindType},
	{regexp.MustCompile(`^module\s+([A-Za-z_][\w:]*)`), types.KindModule},
	{regexp.MustCompile(`^(?:export\s+)?(?:pub(?:\([a-z]+\))?\s+)?const\s+([A-Za-z_$][\w$]*)`), types.KindConst},
	{regexp.MustCompile(`^(?:export\s+)?(?:let|var|static)\s+(?:mut\s+)?([A-Za-z_$][\w$]*)`), types.KindVar},
}

// NewHeuristicParser creates the line-based fallback parser
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// Language implements LanguageParser
func (p *HeuristicParser) Language() string { return "*" }

// Parse implements LanguageParser
func (p *HeuristicParser) Parse(ctx context.Context, file types.SourceFile) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &types.ParseResult{File: file.RelPath, Language: file.Language}

	scanner := bufio.NewScanner(bytes.NewReader(file.Content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		indent := len(raw) - len(strings.TrimLeft(raw, " \t"))

		for _, rule := range declRules {
			m := rule.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			name := m[1]
			span := types.Span{StartLine: lineNo, StartCol: indent + 1, EndLine: lineNo, EndCol: len(raw) + 1}
			kind := rule.kind
			exported := heuristicExported(text, name)
			scope := types.ScopeUnexported
			if exported {
				scope = types.ScopeExported
			}
			result.Symbols = append(result.Symbols, types.Symbol{
				Name:      name,
				Kind:      kind,
				File:      file.RelPath,
				Language:  file.Language,
				Span:      span,
				Signature: strings.TrimSuffix(strings.TrimSuffix(text, "{"), ":"),
				Scope:     scope,
			})
			if kind == types.KindFunction && len(m) > 2 {
				result.Functions = append(result.Functions, types.Function{
					Name:     name,
					Span:     span,
					Exported: exported,
					Params:   heuristicParams(m[2]),
					Results:  heuristicResults(m),
				})
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		result.AddError(file.RelPath, lineNo, 0, err.Error())
	}
	return result, nil
}

func heuristicExported(line, name string) bool {
	if strings.HasPrefix(line, "pub") || strings.HasPrefix(line, "export") {
		return true
	}
	if name == "" || strings.HasPrefix(name, "_") {
		return false
	}
	first := name[0]
	return first >= 'A' && first <= 'Z'
}

// heuristicParams splits a parameter list. Types are kept only when written
// in "name: type" form.
func heuristicParams(list string) []types.Param {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	var out []types.Param
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "self" || part == "&self" || part == "&mut self" {
			continue
		}
		if name, typ, ok := strings.Cut(part, ":"); ok {
			out = append(out, types.Param{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
			continue
		}
		if i := strings.IndexByte(part, '='); i >= 0 {
			part = strings.TrimSpace(part[:i])
		}
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		out = append(out, types.Param{Name: fields[len(fields)-1]})
	}
	return out
}

func heuristicResults(m []string) []string {
	if len(m) < 4 || strings.TrimSpace(m[3]) == "" {
		return nil
	}
	return []string{collapse(m[3])}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
