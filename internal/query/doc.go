// Package query implements the query language: a small boolean language
// over the search engines.
//
//	parseConfig                     bare term, searched with the hybrid engine
//	symbol:Load kind:function       field terms, juxtaposition means AND
//	fuzzy:hndlr OR @semantic:"retry with backoff"
//	regex:"func \w+Test" file:*_test.go AND NOT path:vendor
//
// AND binds tighter than OR and both are left-associative. Search fields
// (symbol, text, regex, fuzzy, semantic, hybrid, diff) and @engine directives are
// leaves that run an engine. file, path, lang and kind are filters: they
// narrow the results of the other side of an AND, and a query made only of
// filters lists the matching files.
//
// NOT is a subtraction and is only accepted as the right operand of an
// AND. A query whose top level, or an OR branch, is a NOT fails with a
// *types.QuerySyntaxError, as does any input that does not parse. Node.String
// renders an AST back to query text that parses to an equal AST.
package query
