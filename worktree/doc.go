// Package worktree manages per-task git worktrees: creating, listing,
// locking, and cleaning them up under a repo's base_path. Every git
// invocation runs through an injected *resilience.Manager so a stuck git
// process gets the same retry/circuit/timeout treatment as any other
// external call, and through a shared bulkhead so a burst of task creation
// can't fork an unbounded number of git subprocesses at once. The
// filesystem calls made directly (creating base_path, removing a directory
// git no longer tracks) do not go through the Manager.
package worktree
