package merge

import "strings"

// MarkerLines records the 1-indexed source lines of one conflict hunk's
// markers.
type MarkerLines struct {
	StartLine  int
	MiddleLine int
	EndLine    int
}

// MergeConflict is one conflicting hunk found in a file. Base is nil when
// `git show :1:{file}` had nothing to offer (e.g. the file didn't exist
// on the common ancestor).
type MergeConflict struct {
	File    string
	Ours    string
	Theirs  string
	Base    *string
	Markers MarkerLines
}

const (
	markerStart  = "<<<<<<< "
	markerMiddle = "======="
	markerEnd    = ">>>>>>> "
)

// parseConflictMarkers scans content for `<<<<<<<`/`=======`/`>>>>>>>`
// conflict hunks and returns one MergeConflict per hunk, with file and
// base left for the caller to fill in. Content outside any hunk is
// ignored; a malformed hunk (missing its closing marker) is dropped
// rather than reported as a false conflict.
func parseConflictMarkers(content string) []MergeConflict {
	lines := strings.Split(content, "\n")

	var hunks []MergeConflict
	i := 0
	for i < len(lines) {
		if !strings.HasPrefix(lines[i], markerStart) {
			i++
			continue
		}
		startLine := i + 1

		middle := -1
		for j := i + 1; j < len(lines); j++ {
			if lines[j] == markerMiddle {
				middle = j
				break
			}
		}
		if middle == -1 {
			break
		}

		end := -1
		for j := middle + 1; j < len(lines); j++ {
			if strings.HasPrefix(lines[j], markerEnd) {
				end = j
				break
			}
		}
		if end == -1 {
			break
		}

		hunks = append(hunks, MergeConflict{
			Ours:   strings.Join(lines[i+1:middle], "\n"),
			Theirs: strings.Join(lines[middle+1:end], "\n"),
			Markers: MarkerLines{
				StartLine:  startLine,
				MiddleLine: middle + 1,
				EndLine:    end + 1,
			},
		})
		i = end + 1
	}
	return hunks
}

// applyResolutionContent renders the new file content for a single
// resolved hunk, identified by its marker line numbers, against the
// file's original lines.
func applyResolutionContent(original string, markers MarkerLines, resolved string) string {
	lines := strings.Split(original, "\n")
	before := lines[:markers.StartLine-1]
	after := lines[markers.EndLine:]

	var out []string
	out = append(out, before...)
	out = append(out, strings.Split(resolved, "\n")...)
	out = append(out, after...)
	return strings.Join(out, "\n")
}

// manualMarkerContent reconstructs the original marker-formatted hunk
// text for the "manual" strategy, which defers resolution to a human.
func manualMarkerContent(c MergeConflict) string {
	var b strings.Builder
	b.WriteString(markerStart + "ours\n")
	b.WriteString(c.Ours)
	b.WriteString("\n" + markerMiddle + "\n")
	b.WriteString(c.Theirs)
	b.WriteString("\n" + markerEnd + "theirs\n")
	return b.String()
}
