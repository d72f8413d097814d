// Package merge resolves conflicts produced by merging a worktree's
// branch back into its base: detecting conflict markers, applying
// resolution strategies, and completing or aborting the merge. Every git
// invocation goes directly through an injected *gitexec.Runner; no
// *resilience.Manager (retry, circuit breaker, timeout policy) is applied
// to these calls.
package merge
