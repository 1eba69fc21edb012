// Package codeblock finds fenced code regions in chat text and decides which
// of them show the code before an edit and which show it after.
//
// The assignment is a best-effort heuristic applied in order:
//
//  1. Labels: a block whose preceding line mentions before/old/original/current
//     is the before block; after/new/updated/changed/fixed marks the after
//     block. The first labeled block of each kind wins.
//  2. Positional: exactly two unlabeled blocks in prose that talks about a
//     change (before, after, change, update, modify, fix, replace, refactor)
//     are read as before then after.
//  3. Markers: key-value fields such as old_string/new_string with a quoted
//     or brace-delimited payload.
//  4. Shape: a single block is the after state unless before-words outnumber
//     after-words in the prose; more than two blocks map first to before and
//     last to after.
//
// Extract is deterministic. Running it twice on the same text yields the same
// Result.
package codeblock
