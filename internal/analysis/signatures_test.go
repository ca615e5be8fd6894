package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codescope/pkg/types"
)

const apiSource = `package api

import "context"

// Get fetches one item
func Get(ctx context.Context, id string) (*Item, error) { return nil, nil }

func helper() {}

type Client struct{}

func (c *Client) Do(req *Request) error { return nil }

type inner struct{}

func (i inner) Do() {}
`

func TestExtractSignaturesGo(t *testing.T) {
	sigs := ExtractSignatures(parseOne(t, "api.go", apiSource), false)
	require.Len(t, sigs, 2)

	get := sigs[0]
	assert.Equal(t, "Get", get.Name)
	assert.Equal(t, 6, get.Line)
	assert.Equal(t, []types.Param{{Name: "ctx", Type: "context.Context"}, {Name: "id", Type: "string"}}, get.Params)
	assert.Equal(t, []string{"*Item", "error"}, get.Results)
	assert.Zero(t, get.Unresolved)
	assert.Equal(t, "func Get(ctx context.Context, id string) (*Item, error)", get.Text)

	do := sigs[1]
	assert.Equal(t, "Do", do.Name)
	assert.Equal(t, "Client", do.Parent)
}

func TestExtractSignaturesIncludePrivate(t *testing.T) {
	sigs := ExtractSignatures(parseOne(t, "api.go", apiSource), true)
	var names []string
	for _, s := range sigs {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Get", "helper", "Do", "Do"}, names)
	assert.NotNil(t, sigs[1].Params)
}

func TestExtractSignaturesPython(t *testing.T) {
	src := "def area(w, h: int) -> int:\n    return w * h\n\n\ndef _private():\n    pass\n"
	sigs := ExtractSignatures(parseOne(t, "geo.py", src), false)
	require.Len(t, sigs, 1)
	assert.Equal(t, "area", sigs[0].Name)
	assert.Equal(t, 1, sigs[0].Unresolved)
	assert.Equal(t, []string{"int"}, sigs[0].Results)
}

func TestExtractSignaturesAll(t *testing.T) {
	src := corpus(t, map[string]string{"api.go": apiSource, "geo.py": "def area(w, h):\n    return w * h\n"})
	sigs, err := ExtractSignaturesAll(context.Background(), src, false)
	require.NoError(t, err)
	require.Len(t, sigs, 3)
	assert.Equal(t, "api.go", sigs[0].File)
	assert.Equal(t, "geo.py", sigs[2].File)
	assert.Equal(t, 2, sigs[2].Unresolved)
}

func TestRenderSignature(t *testing.T) {
	fn := types.Function{Name: "Add", Parent: "Calc", Params: []types.Param{{Name: "a", Type: "int"}, {Name: "b"}}, Results: []string{"int", "error"}}
	assert.Equal(t, "Calc.Add(a int, b) (int, error)", renderSignature(&fn))
}
