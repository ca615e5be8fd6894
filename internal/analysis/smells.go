package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/codescope/pkg/types"
)

// Smell rule names
const (
	RuleLongFunction      = "long-function"
	RuleTooManyParameters = "too-many-parameters"
	RuleDeepNesting       = "deep-nesting"
	RuleTooManyReturns    = "too-many-returns"
)

// Thresholds are the limits a function may reach before a rule fires
type Thresholds struct {
	MaxFunctionLines int `json:"max_function_lines"`
	MaxParameters    int `json:"max_parameters"`
	MaxNesting       int `json:"max_nesting"`
	MaxReturns       int `json:"max_returns"`
}

// DefaultThresholds returns the built-in limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxFunctionLines: 60,
		MaxParameters:    5,
		MaxNesting:       4,
		MaxReturns:       6,
	}
}

// withDefaults replaces non-positive limits with the defaults
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.MaxFunctionLines <= 0 {
		t.MaxFunctionLines = d.MaxFunctionLines
	}
	if t.MaxParameters <= 0 {
		t.MaxParameters = d.MaxParameters
	}
	if t.MaxNesting <= 0 {
		t.MaxNesting = d.MaxNesting
	}
	if t.MaxReturns <= 0 {
		t.MaxReturns = d.MaxReturns
	}
	return t
}

// Severity grades a value that exceeds threshold: up to 1.5x is info, up
// to 2x is a warning, beyond that an error
func Severity(value, threshold int) types.Severity {
	switch {
	case value*2 > threshold*4:
		return types.SeverityError
	case value*2 > threshold*3:
		return types.SeverityWarning
	default:
		return types.SeverityInfo
	}
}

// DetectSmells applies the smell rules to every function of one file.
// too-many-returns only applies to Go. Findings are ordered by line, then
// rule.
func DetectSmells(parse *types.ParseResult, th Thresholds) []types.Finding {
	th = th.withDefaults()
	var out []types.Finding
	add := func(fn *types.Function, rule string, value, limit int, what string) {
		if value <= limit {
			return
		}
		out = append(out, types.Finding{
			Rule:      rule,
			File:      parse.File,
			Symbol:    fn.QualifiedName(),
			Span:      fn.Span,
			Severity:  Severity(value, limit),
			Value:     value,
			Threshold: limit,
			Message:   fmt.Sprintf("%s has %d %s (threshold %d)", fn.QualifiedName(), value, what, limit),
		})
	}
	for i := range parse.Functions {
		fn := &parse.Functions[i]
		add(fn, RuleLongFunction, fn.Span.Lines(), th.MaxFunctionLines, "lines")
		add(fn, RuleTooManyParameters, len(fn.Params), th.MaxParameters, "parameters")
		add(fn, RuleDeepNesting, fn.MaxNesting, th.MaxNesting, "nesting levels")
		if parse.Language == "go" {
			add(fn, RuleTooManyReturns, fn.Returns, th.MaxReturns, "return statements")
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Span.StartLine != out[j].Span.StartLine {
			return out[i].Span.StartLine < out[j].Span.StartLine
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// DetectSmellsAll runs DetectSmells over every parsed file of src, in
// parallel, and returns findings in file order
func DetectSmellsAll(ctx context.Context, src Source, th Thresholds) ([]types.Finding, error) {
	perFile, err := mapFiles(ctx, collect(src), func(it parsed) []types.Finding {
		return DetectSmells(it.parse, th)
	})
	if err != nil {
		return nil, err
	}
	var out []types.Finding
	for _, f := range perFile {
		out = append(out, f...)
	}
	return out, nil
}
