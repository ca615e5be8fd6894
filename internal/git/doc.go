// Package git answers history questions about a source tree: who last
// touched a line (blame) and which lines of a revision range's diff match a
// pattern (diff search).
//
// The git executable is the backend. Its failures are wrapped with
// types.ErrGitBackend and surfaced verbatim; they are never retried because
// they almost always stem from repository state or configuration.
package git
