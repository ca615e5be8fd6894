package analysis

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/dshills/codescope/pkg/types"
)

// ExtractSignatures lists the public call surface of one file: exported
// functions and methods with their parameters and results. Parameters with
// no static type count as unresolved. Go methods on unexported types are
// not public and are skipped. includePrivate lists every function.
func ExtractSignatures(parse *types.ParseResult, includePrivate bool) []types.Signature {
	text := make(map[types.Span]string, len(parse.Symbols))
	for _, s := range parse.Symbols {
		if s.Kind.IsCallable() {
			text[s.Span] = s.Signature
		}
	}

	var out []types.Signature
	for _, fn := range parse.Functions {
		if !includePrivate && !public(parse.Language, &fn) {
			continue
		}
		sig := types.Signature{
			Name:    fn.Name,
			Parent:  fn.Parent,
			File:    parse.File,
			Line:    fn.Span.StartLine,
			Params:  fn.Params,
			Results: fn.Results,
			Text:    text[fn.Span],
		}
		if sig.Params == nil {
			sig.Params = []types.Param{}
		}
		for _, p := range fn.Params {
			if p.Type == "" {
				sig.Unresolved++
			}
		}
		if sig.Text == "" {
			sig.Text = renderSignature(&fn)
		}
		out = append(out, sig)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// ExtractSignaturesAll runs ExtractSignatures over every parsed file of src
func ExtractSignaturesAll(ctx context.Context, src Source, includePrivate bool) ([]types.Signature, error) {
	perFile, err := mapFiles(ctx, collect(src), func(it parsed) []types.Signature {
		return ExtractSignatures(it.parse, includePrivate)
	})
	if err != nil {
		return nil, err
	}
	var out []types.Signature
	for _, s := range perFile {
		out = append(out, s...)
	}
	return out, nil
}

func public(lang string, fn *types.Function) bool {
	if !fn.Exported {
		return false
	}
	if lang == "go" && fn.Parent != "" {
		r := []rune(fn.Parent)
		return unicode.IsUpper(r[0])
	}
	return true
}

// renderSignature formats name(a T, b) R for parsers that keep no text
func renderSignature(fn *types.Function) string {
	var b strings.Builder
	b.WriteString(fn.QualifiedName())
	b.WriteString("(")
	for i, p := range fn.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strings.TrimSpace(p.Name + " " + p.Type))
	}
	b.WriteString(")")
	switch len(fn.Results) {
	case 0:
	case 1:
		b.WriteString(" " + fn.Results[0])
	default:
		b.WriteString(" (" + strings.Join(fn.Results, ", ") + ")")
	}
	return b.String()
}
