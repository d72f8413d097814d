package merge

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/relayforge/resilience-core/gitexec"
)

// setupConflictingRepo builds a bare-bones repo with main and feature
// branches that both modified the same line of the same file, then
// checks out feature so StartMerge(main) produces a real conflict.
func setupConflictingRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) string {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
		return string(out)
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("checkout", "-b", "main")

	write := func(content string) {
		if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("shared\n")
	run("add", ".")
	run("commit", "-m", "base")

	run("checkout", "-b", "feature")
	write("feature-version\n")
	run("commit", "-am", "feature change")

	run("checkout", "main")
	write("main-version\n")
	run("commit", "-am", "main change")

	run("checkout", "feature")

	return dir
}

func TestResolver_StartMergeDetectsConflict(t *testing.T) {
	dir := setupConflictingRepo(t)
	runner := gitexec.NewRunner(nil)
	resolver := NewResolver(runner)

	result, err := resolver.StartMerge(context.Background(), dir, "main")
	if err != nil {
		t.Fatalf("StartMerge() error = %v", err)
	}
	if result.Success {
		t.Fatalf("expected Success=false on a real conflict")
	}
	if len(result.Conflicts) != 1 {
		t.Fatalf("len(Conflicts) = %d, want 1", len(result.Conflicts))
	}

	c := result.Conflicts[0]
	if c.Ours == "" || c.Theirs == "" {
		t.Errorf("expected populated Ours/Theirs, got %+v", c)
	}
	if !(c.Markers.StartLine < c.Markers.MiddleLine && c.Markers.MiddleLine < c.Markers.EndLine) {
		t.Errorf("marker lines out of order: %+v", c.Markers)
	}
}

func TestResolver_ResolveAllOursThenComplete(t *testing.T) {
	dir := setupConflictingRepo(t)
	runner := gitexec.NewRunner(nil)
	resolver := NewResolver(runner)
	ctx := context.Background()

	if _, err := resolver.StartMerge(ctx, dir, "main"); err != nil {
		t.Fatalf("StartMerge() error = %v", err)
	}

	res, err := resolver.ResolveAll(ctx, dir, StrategyOurs)
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if res.RequiresReview {
		t.Errorf("expected RequiresReview=false for an all-ours resolution")
	}
	if len(res.Resolutions) != 1 {
		t.Fatalf("len(Resolutions) = %d, want 1", len(res.Resolutions))
	}

	complete, err := resolver.CompleteMerge(ctx, dir, "")
	if err != nil {
		t.Fatalf("CompleteMerge() error = %v", err)
	}
	if !complete.Success || !complete.Merged {
		t.Errorf("CompleteMerge() = %+v, want success+merged", complete)
	}
}

func TestResolver_AbortMerge(t *testing.T) {
	dir := setupConflictingRepo(t)
	runner := gitexec.NewRunner(nil)
	resolver := NewResolver(runner)
	ctx := context.Background()

	if _, err := resolver.StartMerge(ctx, dir, "main"); err != nil {
		t.Fatalf("StartMerge() error = %v", err)
	}
	if err := resolver.AbortMerge(ctx, dir); err != nil {
		t.Fatalf("AbortMerge() error = %v", err)
	}

	conflicts, err := resolver.DetectConflicts(ctx, dir)
	if err != nil {
		t.Fatalf("DetectConflicts() error = %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts after abort, got %v", conflicts)
	}
}

func TestWorktreeRootOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/repo/.worktrees/T1/file.go", "/repo/.worktrees/T1"},
		{"/repo/.worktrees/T1/sub/file.go", "/repo/.worktrees/T1"},
		{"/tmp/scratch/file.go", "/tmp/scratch"},
	}
	for _, tt := range tests {
		if got := worktreeRootOf(tt.in); got != tt.want {
			t.Errorf("worktreeRootOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
