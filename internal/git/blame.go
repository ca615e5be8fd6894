package git

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/codescope/pkg/types"
)

// ParseBlame decodes the porcelain output for a single blamed line
func ParseBlame(out []byte) (*types.BlameRecord, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rec types.BlameRecord
	header := true
	for sc.Scan() {
		line := sc.Text()
		if header {
			fields := strings.Fields(line)
			if len(fields) < 3 || len(fields[0]) < 40 {
				return nil, fmt.Errorf("%w: malformed blame header %q", types.ErrGitBackend, line)
			}
			rec.Commit = fields[0]
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("%w: malformed blame line number %q", types.ErrGitBackend, fields[2])
			}
			rec.Line = n
			header = false
			continue
		}
		if content, ok := strings.CutPrefix(line, "\t"); ok {
			rec.Content = content
			return &rec, nil
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "author":
			rec.Author = value
		case "author-mail":
			rec.AuthorMail = strings.Trim(value, "<>")
		case "author-time":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				rec.AuthorTime = time.Unix(secs, 0).UTC()
			}
		case "summary":
			rec.Summary = value
		case "filename":
			rec.File = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read blame output: %w", types.ErrGitBackend, err)
	}
	if header {
		return nil, fmt.Errorf("%w: empty blame output", types.ErrGitBackend)
	}
	return nil, fmt.Errorf("%w: blame output has no content line", types.ErrGitBackend)
}

// Uncommitted reports whether the record belongs to a working tree change
func Uncommitted(rec *types.BlameRecord) bool {
	return strings.Trim(rec.Commit, "0") == ""
}
