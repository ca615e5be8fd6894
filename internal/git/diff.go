package git

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/dshills/codescope/pkg/types"
)

// LineType classifies a line inside a diff hunk
type LineType string

const (
	LineAdded   LineType = "added"
	LineRemoved LineType = "removed"
	LineContext LineType = "context"
)

// DiffLine is one body line of a hunk. OldLine is 0 for added lines and
// NewLine is 0 for removed lines.
type DiffLine struct {
	Type    LineType
	Content string
	OldLine int
	NewLine int
}

// Line returns the number a reader would look up: the new-side line for
// added and context lines, the old-side line for removed ones
func (l DiffLine) Line() int {
	if l.Type == LineRemoved {
		return l.OldLine
	}
	return l.NewLine
}

// Hunk is one @@ section of a file diff
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []DiffLine
}

// FileDiff is the diff of one file. OldPath is empty for added files and
// NewPath is empty for deleted ones.
type FileDiff struct {
	OldPath string
	NewPath string
	Binary  bool
	Hunks   []Hunk
}

// Path returns the path the diff is reported under
func (f *FileDiff) Path() string {
	if f.NewPath != "" {
		return f.NewPath
	}
	return f.OldPath
}

// ParseDiff decodes `git diff` unified output. Hunk line counts decide where
// a hunk ends, so body lines that look like headers ("--- x") are kept.
func ParseDiff(out []byte) ([]FileDiff, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		files            []FileDiff
		cur              *FileDiff
		hunk             *Hunk
		oldLeft, newLeft int
		oldNo, newNo     int
	)
	flushHunk := func() {
		if hunk != nil && cur != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
		}
		hunk = nil
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
		}
		cur = nil
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if hunk != nil && (oldLeft > 0 || newLeft > 0) {
			dl, ok := bodyLine(line, &oldNo, &newNo)
			if ok {
				switch dl.Type {
				case LineAdded:
					newLeft--
				case LineRemoved:
					oldLeft--
				default:
					oldLeft--
					newLeft--
				}
				hunk.Lines = append(hunk.Lines, dl)
				continue
			}
		}

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			cur = &FileDiff{}
			cur.OldPath, cur.NewPath = gitHeaderPaths(strings.TrimPrefix(line, "diff --git "))
		case strings.HasPrefix(line, "--- ") && cur != nil && hunk == nil:
			cur.OldPath = diffPath(strings.TrimPrefix(line, "--- "), "a/")
		case strings.HasPrefix(line, "+++ ") && cur != nil && hunk == nil:
			cur.NewPath = diffPath(strings.TrimPrefix(line, "+++ "), "b/")
		case strings.HasPrefix(line, "new file mode") && cur != nil:
			cur.OldPath = ""
		case strings.HasPrefix(line, "deleted file mode") && cur != nil:
			cur.NewPath = ""
		case strings.HasPrefix(line, "Binary files ") && cur != nil:
			cur.Binary = true
		case strings.HasPrefix(line, "@@ "):
			if cur == nil {
				return nil, fmt.Errorf("%w: hunk outside a file diff at line %d", types.ErrGitBackend, lineNo)
			}
			flushHunk()
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", types.ErrGitBackend, lineNo, err)
			}
			hunk = &h
			oldLeft, newLeft = h.OldLines, h.NewLines
			oldNo, newNo = h.OldStart, h.NewStart
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read diff output: %w", types.ErrGitBackend, err)
	}
	flushFile()
	return files, nil
}

// bodyLine decodes one hunk body line and advances the line counters.
// "\ No newline at end of file" markers are consumed without a line.
func bodyLine(line string, oldNo, newNo *int) (DiffLine, bool) {
	if line == "" {
		// some tools strip the trailing space of empty context lines
		dl := DiffLine{Type: LineContext, OldLine: *oldNo, NewLine: *newNo}
		*oldNo++
		*newNo++
		return dl, true
	}
	content := line[1:]
	switch line[0] {
	case '+':
		dl := DiffLine{Type: LineAdded, Content: content, NewLine: *newNo}
		*newNo++
		return dl, true
	case '-':
		dl := DiffLine{Type: LineRemoved, Content: content, OldLine: *oldNo}
		*oldNo++
		return dl, true
	case ' ':
		dl := DiffLine{Type: LineContext, Content: content, OldLine: *oldNo, NewLine: *newNo}
		*oldNo++
		*newNo++
		return dl, true
	}
	return DiffLine{}, false
}

// parseHunkHeader parses "@@ -l[,s] +l[,s] @@ section"
func parseHunkHeader(line string) (Hunk, error) {
	rest := strings.TrimPrefix(line, "@@ ")
	ranges, _, ok := strings.Cut(rest, " @@")
	if !ok {
		return Hunk{}, fmt.Errorf("malformed hunk header %q", line)
	}
	oldRange, newRange, ok := strings.Cut(ranges, " ")
	if !ok || !strings.HasPrefix(oldRange, "-") || !strings.HasPrefix(newRange, "+") {
		return Hunk{}, fmt.Errorf("malformed hunk header %q", line)
	}
	var h Hunk
	var err error
	if h.OldStart, h.OldLines, err = parseRange(oldRange[1:]); err != nil {
		return Hunk{}, fmt.Errorf("hunk header %q: %w", line, err)
	}
	if h.NewStart, h.NewLines, err = parseRange(newRange[1:]); err != nil {
		return Hunk{}, fmt.Errorf("hunk header %q: %w", line, err)
	}
	return h, nil
}

// parseRange parses "start[,count]"; a missing count means 1
func parseRange(s string) (int, int, error) {
	startStr, countStr, hasCount := strings.Cut(s, ",")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, err
	}
	count := 1
	if hasCount {
		if count, err = strconv.Atoi(countStr); err != nil {
			return 0, 0, err
		}
	}
	return start, count, nil
}

// diffPath strips the a/ or b/ prefix, unquotes C-style quoted names and
// maps /dev/null to "".
func diffPath(raw, prefix string) string {
	raw = strings.TrimRight(raw, "\t")
	if raw == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(raw, `"`) {
		if unq, err := strconv.Unquote(raw); err == nil {
			raw = unq
		}
	}
	return strings.TrimPrefix(raw, prefix)
}

// gitHeaderPaths extracts both paths from "a/x b/y". It is a fallback for
// diffs with no ---/+++ lines such as binary or mode-only changes.
func gitHeaderPaths(rest string) (string, string) {
	if strings.HasPrefix(rest, `"`) {
		if end := strings.Index(rest[1:], `" `); end >= 0 {
			oldRaw := rest[:end+2]
			return diffPath(oldRaw, "a/"), diffPath(strings.TrimSpace(rest[end+2:]), "b/")
		}
	}
	if i := strings.Index(rest, " b/"); i >= 0 {
		return diffPath(rest[:i], "a/"), diffPath(rest[i+1:], "b/")
	}
	return "", ""
}
