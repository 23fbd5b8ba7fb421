// Package wire implements the word-oriented pointer message layout that the
// canon package checks and produces.
//
// It is deliberately small: pointer word encoding, segments and messages,
// a resolving reader that follows far pointers under nesting and traversal
// limits, a single-segment builder, and stream framing. Schema handling is
// out of scope; values are read and written structurally.
package wire
