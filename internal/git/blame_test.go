package git

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/pkg/types"
)

const porcelainFixture = `4e1243bd22c66e76c2ba9eddc1f91394e57f9f83 2 3 1
author Ada Lovelace
author-mail <ada@example.com>
author-time 1700000000
author-tz +0000
committer Ada Lovelace
committer-mail <ada@example.com>
committer-time 1700000000
committer-tz +0000
summary add parser
previous 1111111111111111111111111111111111111111 cfg/parse.go
filename cfg/parse.go
	return parse(path)
`

func TestParseBlame(t *testing.T) {
	rec, err := ParseBlame([]byte(porcelainFixture))
	require.NoError(t, err)

	assert.Equal(t, "4e1243bd22c66e76c2ba9eddc1f91394e57f9f83", rec.Commit)
	assert.Equal(t, 3, rec.Line)
	assert.Equal(t, "Ada Lovelace", rec.Author)
	assert.Equal(t, "ada@example.com", rec.AuthorMail)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), rec.AuthorTime)
	assert.Equal(t, "add parser", rec.Summary)
	assert.Equal(t, "cfg/parse.go", rec.File)
	assert.Equal(t, "return parse(path)", rec.Content)
	assert.False(t, Uncommitted(rec))
}

func TestParseBlameUncommitted(t *testing.T) {
	out := "0000000000000000000000000000000000000000 1 1 1\n" +
		"author Not Committed Yet\n" +
		"summary Version of a.go from a.go\n" +
		"filename a.go\n" +
		"\tpackage a\n"
	rec, err := ParseBlame([]byte(out))
	require.NoError(t, err)
	assert.True(t, Uncommitted(rec))
	assert.Equal(t, "package a", rec.Content)
}

func TestParseBlameMalformed(t *testing.T) {
	for name, out := range map[string]string{
		"empty":      "",
		"short sha":  "abc 1 1 1\n\tx\n",
		"bad line":   "4e1243bd22c66e76c2ba9eddc1f91394e57f9f83 1 x 1\n\tx\n",
		"no content": "4e1243bd22c66e76c2ba9eddc1f91394e57f9f83 1 1 1\nauthor A\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBlame([]byte(out))
			assert.ErrorIs(t, err, types.ErrGitBackend)
		})
	}
}
