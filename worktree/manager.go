package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/relayforge/resilience-core/gitexec"
	"github.com/relayforge/resilience-core/resilience"
)

// Config controls how a Manager creates and reclaims worktrees.
type Config struct {
	Enabled bool

	// BasePath is where per-task worktrees live. Default:
	// "<repo>/.worktrees".
	BasePath string

	// BranchPrefix names branches created for a task without an explicit
	// BranchName. Default: "task/".
	BranchPrefix string

	// AutoCleanupHours bounds how long a locked, inactive worktree may
	// sit before Cleanup reclaims it. Default: 24.
	AutoCleanupHours int

	// MergeOnSuccess is advisory; nothing in this module reads it, and the
	// merge package does not consult it. withDefaults leaves it unchanged,
	// so a zero Config has it false.
	MergeOnSuccess bool
}

func (c Config) withDefaults(repoRoot string) Config {
	if c.BasePath == "" {
		c.BasePath = filepath.Join(repoRoot, ".worktrees")
	}
	if c.BranchPrefix == "" {
		c.BranchPrefix = "task/"
	}
	if c.AutoCleanupHours <= 0 {
		c.AutoCleanupHours = 24
	}
	return c
}

// WorktreeStats summarizes how far a worktree's branch has diverged from
// its base.
type WorktreeStats struct {
	CommitsAhead int
	FilesChanged int
	Additions    int
	Deletions    int
}

// WorktreeInfo describes one managed worktree.
type WorktreeInfo struct {
	Path       string
	Branch     string
	TaskID     string
	TaskName   string
	BaseBranch string

	// IsActive is true exactly when the worktree is not locked. Locking
	// a worktree marks a task done without removing its workspace;
	// Cleanup only reclaims locked, stale entries, so an actively
	// worked-on (unlocked) worktree is never swept regardless of age.
	IsActive bool

	Stats     WorktreeStats
	CreatedAt time.Time
}

// CreateRequest is the input to Manager.Create.
type CreateRequest struct {
	TaskID     string
	TaskName   string
	BaseBranch string
	BranchName string
}

// Manager creates, lists, and reclaims per-task git worktrees under a
// repository's base_path. Every git invocation is routed through an
// injected *resilience.Manager (operation type tool_call, circuit
// key "agent:worktree:{task_id}") and a shared bulkhead caps how many git
// subprocesses may be in flight across every task at once.
type Manager struct {
	repoRoot   string
	cfg        Config
	runner     *gitexec.Runner
	resilience *resilience.Manager
	bulkhead   *resilience.Bulkhead

	group singleflight.Group
}

// NewManager builds a Manager rooted at repoRoot.
func NewManager(repoRoot string, runner *gitexec.Runner, res *resilience.Manager, bulkhead *resilience.Bulkhead, cfg Config) *Manager {
	return &Manager{
		repoRoot:   repoRoot,
		cfg:        cfg.withDefaults(repoRoot),
		runner:     runner,
		resilience: res,
		bulkhead:   bulkhead,
	}
}

// run executes a git subcommand through the bulkhead and the resilience
// manager, scoped to the given task for circuit-breaker purposes.
func (m *Manager) run(ctx context.Context, taskID string, argv []string) (string, error) {
	opts := resilience.ResilienceOptions{
		OperationName: "git." + argv[0],
		Agent:         "worktree:" + taskID,
		OperationType: resilience.OpToolCall,
	}
	return resilience.Execute(m.resilience, ctx, opts, func(ctx context.Context) (string, error) {
		var out string
		err := m.bulkhead.Execute(ctx, func(ctx context.Context) error {
			var runErr error
			out, runErr = m.runner.Run(ctx, argv, gitexec.RunOptions{Dir: m.repoRoot})
			return runErr
		})
		return out, err
	})
}

// Create makes (or idempotently returns) the worktree for req.TaskID.
// Concurrent Create calls for the same task_id are coalesced into a
// single underlying git invocation.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (WorktreeInfo, error) {
	v, err, _ := m.group.Do(req.TaskID, func() (any, error) {
		return m.create(ctx, req)
	})
	if err != nil {
		return WorktreeInfo{}, err
	}
	return v.(WorktreeInfo), nil
}

func (m *Manager) create(ctx context.Context, req CreateRequest) (WorktreeInfo, error) {
	if err := os.MkdirAll(m.cfg.BasePath, 0o755); err != nil {
		return WorktreeInfo{}, fmt.Errorf("worktree: ensuring base_path: %w", err)
	}

	worktreePath := filepath.Join(m.cfg.BasePath, req.TaskID)

	if existing, ok, err := m.findExisting(ctx, req.TaskID, worktreePath); err != nil {
		return WorktreeInfo{}, err
	} else if ok {
		return existing, nil
	}

	base := req.BaseBranch
	if base == "" {
		current, err := m.run(ctx, req.TaskID, []string{"rev-parse", "--abbrev-ref", "HEAD"})
		if err != nil {
			return WorktreeInfo{}, fmt.Errorf("worktree: resolving current branch: %w", err)
		}
		base = current
	}

	branch := req.BranchName
	if branch == "" {
		branch = m.cfg.BranchPrefix + req.TaskID
	}

	_, err := m.run(ctx, req.TaskID, []string{"worktree", "add", "-b", branch, worktreePath, base})
	if err != nil && strings.Contains(err.Error(), "already exists") {
		_, err = m.run(ctx, req.TaskID, []string{"worktree", "add", worktreePath, branch})
	}
	if err != nil {
		return WorktreeInfo{}, fmt.Errorf("worktree: creating %q: %w", worktreePath, err)
	}

	stats, err := m.stats(ctx, req.TaskID, base, branch)
	if err != nil {
		return WorktreeInfo{}, err
	}

	return WorktreeInfo{
		Path:       worktreePath,
		Branch:     branch,
		TaskID:     req.TaskID,
		TaskName:   req.TaskName,
		BaseBranch: base,
		IsActive:   true,
		Stats:      stats,
		CreatedAt:  fileBirthTime(worktreePath),
	}, nil
}

// findExisting returns the current info for an already-registered
// worktree at path, making Create idempotent.
func (m *Manager) findExisting(ctx context.Context, taskID, path string) (WorktreeInfo, bool, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return WorktreeInfo{}, false, err
	}
	for _, e := range entries {
		if e.Path == path {
			return e, true, nil
		}
	}
	return WorktreeInfo{}, false, nil
}

// List parses `git worktree list --porcelain`, skipping the main
// worktree and any entry outside base_path.
func (m *Manager) List(ctx context.Context) ([]WorktreeInfo, error) {
	out, err := m.run(ctx, "list", []string{"worktree", "list", "--porcelain"})
	if err != nil {
		return nil, fmt.Errorf("worktree: listing: %w", err)
	}

	var infos []WorktreeInfo
	for _, entry := range gitexec.ParseWorktreeList(out) {
		if samePath(entry.Path, m.repoRoot) {
			continue
		}
		if !strings.HasPrefix(filepath.Clean(entry.Path), filepath.Clean(m.cfg.BasePath)) {
			continue
		}

		taskID := filepath.Base(entry.Path)
		base := m.trackingBase(ctx, taskID, entry.Path)
		stats, err := m.stats(ctx, taskID, base, entry.Branch)
		if err != nil {
			stats = WorktreeStats{}
		}

		infos = append(infos, WorktreeInfo{
			Path:      entry.Path,
			Branch:    entry.Branch,
			TaskID:    taskID,
			IsActive:  !entry.Locked,
			Stats:     stats,
			CreatedAt: fileBirthTime(entry.Path),
		})
	}
	return infos, nil
}

// trackingBase resolves the branch to diff against for stats: the
// worktree's upstream if it has one, else main, falling back to master.
func (m *Manager) trackingBase(ctx context.Context, taskID, path string) string {
	if upstream, err := m.run(ctx, taskID, []string{"-C", path, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}"}); err == nil && upstream != "" {
		return upstream
	}
	if _, err := m.run(ctx, taskID, []string{"rev-parse", "--verify", "main"}); err == nil {
		return "main"
	}
	return "master"
}

func (m *Manager) stats(ctx context.Context, taskID, base, branch string) (WorktreeStats, error) {
	ahead, err := m.run(ctx, taskID, []string{"rev-list", "--count", base + ".." + branch})
	if err != nil {
		return WorktreeStats{}, nil
	}
	commitsAhead, _ := strconv.Atoi(strings.TrimSpace(ahead))

	shortstat, err := m.run(ctx, taskID, []string{"diff", "--shortstat", base + "..." + branch})
	if err != nil {
		return WorktreeStats{CommitsAhead: commitsAhead}, nil
	}
	diff := gitexec.ParseShortstat(shortstat)

	return WorktreeStats{
		CommitsAhead: commitsAhead,
		FilesChanged: diff.FilesChanged,
		Additions:    diff.Additions,
		Deletions:    diff.Deletions,
	}, nil
}

// Remove deletes the worktree at path. A worktree with pending changes
// is retried with --force; a locked worktree needs the lock explicitly
// overridden; a worktree whose directory git no longer recognizes is
// removed directly from disk. Remove always finishes with a prune so
// removed entries don't linger in git's bookkeeping.
func (m *Manager) Remove(ctx context.Context, path string) error {
	taskID := filepath.Base(path)

	_, err := m.run(ctx, taskID, []string{"worktree", "remove", path})
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "contains modified or untracked files"):
			_, err = m.run(ctx, taskID, []string{"worktree", "remove", "--force", path})
		case strings.Contains(err.Error(), "is locked"):
			_, err = m.run(ctx, taskID, []string{"worktree", "remove", "--force", "--force", path})
		case strings.Contains(err.Error(), "is not a working tree"):
			err = os.RemoveAll(path)
		}
	}
	if err != nil {
		return fmt.Errorf("worktree: removing %q: %w", path, err)
	}

	if _, pruneErr := m.run(ctx, "prune", []string{"worktree", "prune"}); pruneErr != nil {
		return fmt.Errorf("worktree: pruning after remove: %w", pruneErr)
	}
	return nil
}

// Lock marks a worktree locked, protecting it from git worktree prune and
// marking it eligible for Cleanup once it goes stale.
func (m *Manager) Lock(ctx context.Context, path string, reason string) error {
	argv := []string{"worktree", "lock", path}
	if reason != "" {
		argv = append(argv, "--reason", reason)
	}
	_, err := m.run(ctx, filepath.Base(path), argv)
	return err
}

// Unlock reverses Lock.
func (m *Manager) Unlock(ctx context.Context, path string) error {
	_, err := m.run(ctx, filepath.Base(path), []string{"worktree", "unlock", path})
	return err
}

// Cleanup removes every locked worktree older than AutoCleanupHours and
// returns the paths it removed. Unlocked worktrees are left alone
// regardless of age: locking is how a caller marks a task's workspace
// done and safe to reclaim.
func (m *Manager) Cleanup(ctx context.Context) ([]string, error) {
	entries, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-time.Duration(m.cfg.AutoCleanupHours) * time.Hour)

	var removed []string
	for _, e := range entries {
		if e.IsActive {
			continue
		}
		if e.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.Remove(ctx, e.Path); err != nil {
			return removed, err
		}
		removed = append(removed, e.Path)
	}
	return removed, nil
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

// fileBirthTime returns a best-effort creation time for path. Linux has
// no portable birth-time syscall exposed via os.Stat, so this reports the
// inode's last status-change time (ctime), which for a freshly created
// worktree directory coincides with its creation.
func fileBirthTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
