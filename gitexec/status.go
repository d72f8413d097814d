package gitexec

import (
	"regexp"
	"strconv"
	"strings"
)

// StatusResult is the parsed form of `git status --porcelain=v2 --branch`.
type StatusResult struct {
	Branch    string
	IsClean   bool
	Staged    []string
	Unstaged  []string
	Untracked []string
	Ahead     int
	Behind    int
}

var branchAheadBehind = regexp.MustCompile(`^# branch\.ab \+(\d+) -(\d+)`)

// ParseStatusPorcelainV2 parses `git status --porcelain=v2 --branch` output.
//
// Grammar consumed:
//
//	# branch.head <name>
//	# branch.ab +N -M
//	? <path>                      untracked
//	1 XY ... <path>                changed
//	2 XY ... <path> TAB <orig>     renamed/copied
//	u XY ... <path>                unmerged
//
// X is the staged status, Y the worktree status; "." means unchanged in
// that position, so a "1 .M" entry is unstaged-only and a "1 M." entry is
// staged-only. Either non-dot marks the file dirty in some form.
func ParseStatusPorcelainV2(output string) StatusResult {
	var res StatusResult

	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "# branch.head "):
			res.Branch = strings.TrimPrefix(line, "# branch.head ")
		case strings.HasPrefix(line, "# branch.ab "):
			if m := branchAheadBehind.FindStringSubmatch(line); m != nil {
				res.Ahead, _ = strconv.Atoi(m[1])
				res.Behind, _ = strconv.Atoi(m[2])
			}
		case strings.HasPrefix(line, "? "):
			res.Untracked = append(res.Untracked, strings.TrimPrefix(line, "? "))
		case strings.HasPrefix(line, "1 ") || strings.HasPrefix(line, "2 "):
			path, xy, ok := parseChangedEntry(line)
			if !ok {
				continue
			}
			if xy[0] != '.' {
				res.Staged = append(res.Staged, path)
			}
			if xy[1] != '.' {
				res.Unstaged = append(res.Unstaged, path)
			}
		case strings.HasPrefix(line, "u "):
			if path, ok := parseUnmergedEntry(line); ok {
				res.Unstaged = append(res.Unstaged, path)
			}
		}
	}

	res.IsClean = len(res.Staged) == 0 && len(res.Unstaged) == 0 && len(res.Untracked) == 0
	return res
}

// parseChangedEntry extracts the path and the XY status pair from a "1 "
// or "2 " porcelain v2 line. "1" lines have 8 fixed fields before the
// path; "2" (renamed/copied) lines have an extra rename-score field and
// carry the original path after a tab. Only the new path is returned.
func parseChangedEntry(line string) (path string, xy string, ok bool) {
	fieldCount := 9
	if strings.HasPrefix(line, "2 ") {
		fieldCount = 10
	}
	fields := strings.SplitN(line, " ", fieldCount)
	if len(fields) < fieldCount {
		return "", "", false
	}
	xy = fields[1]
	rest := fields[fieldCount-1]
	if tab := strings.IndexByte(rest, '\t'); tab != -1 {
		rest = rest[:tab]
	}
	return rest, xy, true
}

func parseUnmergedEntry(line string) (path string, ok bool) {
	fields := strings.SplitN(line, " ", 11)
	if len(fields) < 11 {
		return "", false
	}
	return fields[10], true
}

// DiffStats is the parsed form of `git diff --shortstat`.
type DiffStats struct {
	FilesChanged int
	Additions    int
	Deletions    int
}

var shortstatPattern = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

// ParseShortstat parses the single summary line `git diff --shortstat`
// prints, e.g. "3 files changed, 12 insertions(+), 4 deletions(-)". Any
// field absent from the summary (because it was zero) parses as zero.
func ParseShortstat(output string) DiffStats {
	m := shortstatPattern.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return DiffStats{}
	}
	var stats DiffStats
	stats.FilesChanged, _ = strconv.Atoi(m[1])
	stats.Additions, _ = strconv.Atoi(m[2])
	stats.Deletions, _ = strconv.Atoi(m[3])
	return stats
}

// WorktreeEntry is one block of `git worktree list --porcelain` output.
type WorktreeEntry struct {
	Path   string
	Branch string
	Locked bool
}

// ParseWorktreeList parses `git worktree list --porcelain`, which prints
// one block per worktree separated by a blank line:
//
//	worktree /path/to/repo
//	HEAD <sha>
//	branch refs/heads/main
//	[locked [reason]]
func ParseWorktreeList(output string) []WorktreeEntry {
	var entries []WorktreeEntry
	var current *WorktreeEntry

	flush := func() {
		if current != nil {
			entries = append(entries, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &WorktreeEntry{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			if current != nil {
				current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		case line == "locked" || strings.HasPrefix(line, "locked "):
			if current != nil {
				current.Locked = true
			}
		}
	}
	flush()

	return entries
}
