package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/relayforge/resilience-core/gitexec"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	StrategyOurs     Strategy = "ours"
	StrategyTheirs   Strategy = "theirs"
	StrategyCombined Strategy = "combined"
	StrategyManual   Strategy = "manual"
)

// MergeResolution is the outcome of resolving one conflict hunk: the
// whole file's new content plus provenance for the choice made.
type MergeResolution struct {
	File       string
	Resolved   string
	Strategy   Strategy
	Confidence float64
	Reasoning  string
}

// MergeResult reports the outcome of StartMerge.
type MergeResult struct {
	Success   bool
	Conflicts []MergeConflict
	Merged    bool
}

// CompleteResult reports the outcome of CompleteMerge.
type CompleteResult struct {
	Success bool
	Merged  bool
	Message string
}

// ResolveAllResult reports the outcome of ResolveAll.
type ResolveAllResult struct {
	Resolutions    []MergeResolution
	RequiresReview bool
}

// Resolver detects and resolves merge conflicts inside a worktree using a
// shared gitexec.Runner.
type Resolver struct {
	runner *gitexec.Runner
}

// NewResolver builds a Resolver backed by runner.
func NewResolver(runner *gitexec.Runner) *Resolver {
	return &Resolver{runner: runner}
}

// DetectConflicts lists every unmerged file in worktreePath and parses
// each for conflict-marker hunks. "not a merge" from git is not an error:
// it just means there is nothing to detect.
func (r *Resolver) DetectConflicts(ctx context.Context, worktreePath string) ([]MergeConflict, error) {
	out, err := r.runner.Run(ctx, []string{"diff", "--name-only", "--diff-filter=U"}, gitexec.RunOptions{Dir: worktreePath})
	if err != nil {
		if strings.Contains(err.Error(), "not a merge") {
			return nil, nil
		}
		return nil, fmt.Errorf("merge: listing unmerged files: %w", err)
	}
	if out == "" {
		return nil, nil
	}

	var conflicts []MergeConflict
	for _, rel := range strings.Split(out, "\n") {
		rel = strings.TrimSpace(rel)
		if rel == "" {
			continue
		}

		abs := filepath.Join(worktreePath, rel)
		content, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("merge: reading %q: %w", abs, err)
		}

		base := r.readBase(ctx, worktreePath, rel)

		for _, hunk := range parseConflictMarkers(string(content)) {
			hunk.File = abs
			hunk.Base = base
			conflicts = append(conflicts, hunk)
		}
	}
	return conflicts, nil
}

// readBase fetches the common-ancestor version of rel via `git show
// :1:rel`. Absence (the file didn't exist on the ancestor, or there is no
// merge in progress) is non-fatal: it just means Base stays nil.
func (r *Resolver) readBase(ctx context.Context, worktreePath, rel string) *string {
	out, err := r.runner.Run(ctx, []string{"show", ":1:" + rel}, gitexec.RunOptions{Dir: worktreePath})
	if err != nil {
		return nil
	}
	return &out
}

// StartMerge merges sourceBranch into the branch checked out at path
// without committing. On conflict, it returns the detected conflicts
// rather than an error: a conflicted merge is an expected outcome, not a
// failure of the merge command itself.
func (r *Resolver) StartMerge(ctx context.Context, path, sourceBranch string) (MergeResult, error) {
	_, err := r.runner.Run(ctx, []string{"merge", sourceBranch, "--no-commit"}, gitexec.RunOptions{Dir: path})
	if err == nil {
		return MergeResult{Success: true}, nil
	}
	// git reports "CONFLICT (...)" on stdout, which GitError does not
	// carry, so a failed merge that left unmerged files also counts as a
	// conflict.
	conflicts, detectErr := r.DetectConflicts(ctx, path)
	if len(conflicts) == 0 && !strings.Contains(err.Error(), "CONFLICT") {
		return MergeResult{}, fmt.Errorf("merge: starting merge of %q: %w", sourceBranch, err)
	}
	if detectErr != nil {
		return MergeResult{}, detectErr
	}
	return MergeResult{Success: false, Conflicts: conflicts, Merged: false}, nil
}

// ResolveConflict writes resolution.Resolved to resolution.File and
// stages it. The worktree root used for `git add` is derived from the
// file's absolute path: the segment immediately under a ".worktrees"
// directory, or the file's parent directory if the path isn't inside one.
func (r *Resolver) ResolveConflict(ctx context.Context, resolution MergeResolution) error {
	if err := os.WriteFile(resolution.File, []byte(resolution.Resolved), 0o644); err != nil {
		return fmt.Errorf("merge: writing %q: %w", resolution.File, err)
	}

	root := worktreeRootOf(resolution.File)
	rel, err := filepath.Rel(root, resolution.File)
	if err != nil {
		rel = resolution.File
	}

	if _, err := r.runner.Run(ctx, []string{"add", rel}, gitexec.RunOptions{Dir: root}); err != nil {
		return fmt.Errorf("merge: staging %q: %w", rel, err)
	}
	return nil
}

// AbortMerge discards an in-progress merge at path.
func (r *Resolver) AbortMerge(ctx context.Context, path string) error {
	if _, err := r.runner.Run(ctx, []string{"merge", "--abort"}, gitexec.RunOptions{Dir: path}); err != nil {
		return fmt.Errorf("merge: aborting merge: %w", err)
	}
	return nil
}

// CompleteMerge commits a conflict-free merge. If nothing is staged, it
// succeeds without committing: there is nothing for a commit to record.
func (r *Resolver) CompleteMerge(ctx context.Context, path, message string) (CompleteResult, error) {
	remaining, err := r.DetectConflicts(ctx, path)
	if err != nil {
		return CompleteResult{}, err
	}
	if len(remaining) > 0 {
		return CompleteResult{}, fmt.Errorf("merge: %d conflict(s) remain in %q", len(remaining), path)
	}

	dirty, err := r.hasUncommittedChanges(ctx, path)
	if err != nil {
		return CompleteResult{}, err
	}
	if !dirty {
		return CompleteResult{Success: true, Merged: true, Message: "No changes to commit"}, nil
	}

	if message == "" {
		message = "Merge completed via resolver"
	}
	if _, err := r.runner.Run(ctx, []string{"commit", "-m", message}, gitexec.RunOptions{Dir: path}); err != nil {
		return CompleteResult{}, fmt.Errorf("merge: committing: %w", err)
	}
	return CompleteResult{Success: true, Merged: true}, nil
}

func (r *Resolver) hasUncommittedChanges(ctx context.Context, path string) (bool, error) {
	out, err := r.runner.Run(ctx, []string{"status", "--porcelain=v2", "--branch"}, gitexec.RunOptions{Dir: path})
	if err != nil {
		return false, nil
	}
	status := gitexec.ParseStatusPorcelainV2(out)
	return !status.IsClean, nil
}

// ResolveAll detects every conflict at path and resolves each one using
// strategy, applying hunks within a file from the bottom up so an
// earlier edit never invalidates a not-yet-applied hunk's line numbers.
func (r *Resolver) ResolveAll(ctx context.Context, path string, strategy Strategy) (ResolveAllResult, error) {
	conflicts, err := r.DetectConflicts(ctx, path)
	if err != nil {
		return ResolveAllResult{}, err
	}

	byFile := make(map[string][]MergeConflict)
	var order []string
	for _, c := range conflicts {
		if _, seen := byFile[c.File]; !seen {
			order = append(order, c.File)
		}
		byFile[c.File] = append(byFile[c.File], c)
	}

	var resolutions []MergeResolution
	requiresReview := false

	for _, file := range order {
		hunks := byFile[file]
		sort.Slice(hunks, func(i, j int) bool { return hunks[i].Markers.StartLine > hunks[j].Markers.StartLine })

		for _, hunk := range hunks {
			resolution, err := r.resolveHunk(file, hunk, strategy)
			if err != nil {
				return ResolveAllResult{}, err
			}
			if err := r.ResolveConflict(ctx, resolution); err != nil {
				return ResolveAllResult{}, err
			}
			resolutions = append(resolutions, resolution)
			if resolution.Confidence < 0.8 {
				requiresReview = true
			}
		}
	}

	return ResolveAllResult{Resolutions: resolutions, RequiresReview: requiresReview}, nil
}

// resolveHunk reads the file's current on-disk content (which may already
// reflect earlier hunks resolved this pass), splices in the strategy's
// resolution for hunk, and returns the resulting whole-file content.
func (r *Resolver) resolveHunk(file string, hunk MergeConflict, strategy Strategy) (MergeResolution, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return MergeResolution{}, fmt.Errorf("merge: reading %q: %w", file, err)
	}

	snippet, confidence, reasoning := resolveSnippet(hunk, strategy)
	resolved := applyResolutionContent(string(content), hunk.Markers, snippet)

	return MergeResolution{
		File:       file,
		Resolved:   resolved,
		Strategy:   strategy,
		Confidence: confidence,
		Reasoning:  reasoning,
	}, nil
}

func resolveSnippet(c MergeConflict, strategy Strategy) (snippet string, confidence float64, reasoning string) {
	switch strategy {
	case StrategyOurs:
		return c.Ours, 1.0, "Kept our changes"
	case StrategyTheirs:
		return c.Theirs, 1.0, "Accepted their changes"
	case StrategyCombined:
		return c.Ours + "\n" + c.Theirs, 0.5, "Combined sequentially — review recommended"
	default:
		return manualMarkerContent(c), 0.0, "Requires manual resolution"
	}
}

// worktreeRootOf derives a worktree's root directory from an absolute
// path to one of its files: the segment immediately following
// ".worktrees", or the file's parent directory if ".worktrees" isn't
// present in the path at all.
func worktreeRootOf(absPath string) string {
	parts := strings.Split(filepath.ToSlash(absPath), "/")
	for i, part := range parts {
		if part == ".worktrees" && i+1 < len(parts) {
			return filepath.Join(strings.Join(parts[:i+2], "/"))
		}
	}
	return filepath.Dir(absPath)
}
