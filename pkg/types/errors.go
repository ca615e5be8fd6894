package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every engine. Engines wrap these with %w so callers
// can branch with errors.Is.
var (
	ErrIO               = errors.New("io error")
	ErrInvalidPattern   = errors.New("invalid pattern")
	ErrQuerySyntax      = errors.New("query syntax error")
	ErrEmbedding        = errors.New("embedding error")
	ErrGitBackend       = errors.New("git backend error")
	ErrAllEnginesFailed = errors.New("all engines failed")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrUnavailable      = errors.New("unavailable")
)

// Result validation errors
var (
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingFileInfo       = errors.New("file info is required")
)

// QuerySyntaxError reports an unparseable query with the byte offset of the failure
type QuerySyntaxError struct {
	Offset int
	Msg    string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Offset, e.Msg)
}

// Unwrap lets errors.Is(err, ErrQuerySyntax) match
func (e *QuerySyntaxError) Unwrap() error {
	return ErrQuerySyntax
}

// ErrorKind maps an error onto its stable taxonomy name
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuerySyntax):
		return "QuerySyntaxError"
	case errors.Is(err, ErrInvalidPattern):
		return "InvalidPattern"
	case errors.Is(err, ErrAllEnginesFailed):
		return "AllEnginesFailed"
	case errors.Is(err, ErrEmbedding):
		return "EmbeddingError"
	case errors.Is(err, ErrGitBackend):
		return "GitBackendError"
	case errors.Is(err, ErrIO):
		return "IoError"
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrUnavailable):
		return "Unavailable"
	default:
		return "Internal"
	}
}

// kinds maps taxonomy names back onto their sentinels
var kinds = map[string]error{
	"QuerySyntaxError": ErrQuerySyntax,
	"InvalidPattern":   ErrInvalidPattern,
	"AllEnginesFailed": ErrAllEnginesFailed,
	"EmbeddingError":   ErrEmbedding,
	"GitBackendError":  ErrGitBackend,
	"IoError":          ErrIO,
	"InvalidArgument":  ErrInvalidArgument,
	"NotFound":         ErrNotFound,
	"Unavailable":      ErrUnavailable,
}

// KindError is the inverse of ErrorKind: the sentinel for a taxonomy name,
// or nil for Internal and unknown names
func KindError(kind string) error {
	return kinds[kind]
}
