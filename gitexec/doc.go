// Package gitexec runs git as a subprocess and parses its plumbing output.
//
// Run spawns git with no shell interpolation; arguments are always
// positional. Exit codes map to a typed *GitError so callers can
// distinguish "git rejected the command" from "the process never finished"
// without scraping stderr text. The parsing helpers in status.go are pure
// functions over porcelain v2 / shortstat text, kept free of exec.Cmd so
// they're trivial to table-test.
package gitexec
