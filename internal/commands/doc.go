// Package commands is the command layer of codescope. Every capability
// (text, symbol, fuzzy, semantic and hybrid search, diff search, blame,
// the structural analyzers, find-similar, indexing and the query language)
// is one named command with a parameter struct and a result value.
//
// A command runs in one of three ways:
//
//   - App.Execute builds a fresh corpus snapshot for the root and runs the
//     command locally
//   - App.Run runs it against an existing snapshot; App.Handle adapts this
//     to the daemon so a serving daemon answers commands from its live
//     index
//   - Forward sends it to a daemon over a daemon.Client
//
// Results are plain values (match lists, graphs, findings, signatures,
// statistics). Render writes them as indented JSON or as text, and
// RenderError writes an error as {"error": {"kind": ..., "message": ...}}.
//
// The command layer is the only place that decides between failing and
// returning partial results: engines report their errors unchanged and
// commands pass them up with the error kind intact.
package commands
