package value

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, doc string) []Token {
	t.Helper()
	var out []Token
	r := NewReader([]byte(doc))
	for {
		tok, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, tok)
	}
}

func TestReader_tokens(t *testing.T) {
	toks := readAll(t, ` {"a": [1, "x"], "b": {}} `)

	kinds := make([]TokenKind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	assert.Equal(t, []TokenKind{
		TokenBeginObject,
		TokenBeginArray, TokenScalar, TokenScalar, TokenEndArray,
		TokenBeginObject, TokenEndObject,
		TokenEndObject,
	}, kinds)
	assert.Equal(t, "a", toks[1].Key)
	assert.Equal(t, "", toks[2].Key)
	assert.Equal(t, "b", toks[5].Key)

	s, _ := toks[3].Value.AsString()
	assert.Equal(t, "x", s)
}

func TestReader_skipCountsDirectChildren(t *testing.T) {
	r := NewReader([]byte(`{"list":[1,[2,3],{"a":[4]},"s"],"after":true}`))

	_, err := r.Next()
	require.NoError(t, err)
	tok, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, TokenBeginArray, tok.Kind)

	n, err := r.Skip()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, r.Depth())

	tok, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "after", tok.Key)
}

func TestReader_offsetSpansSkippedObject(t *testing.T) {
	doc := `{"a": {"b": 1}, "c": 2}`
	r := NewReader([]byte(doc))

	_, err := r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	start := r.Offset() - 1
	_, err = r.Skip()
	require.NoError(t, err)

	assert.Equal(t, `{"b": 1}`, doc[start:r.Offset()])
}

func TestReader_grammar(t *testing.T) {
	for _, doc := range []string{
		``,
		`{"a" 1}`,
		`{"a":1 "b":2}`,
		`{1:2}`,
		`[1,]`,
		`{"a":1,}`,
		`[1 2]`,
		`{"a":1]`,
		`01`,
		`1 2`,
		`{} {}`,
		`:`,
		`tru`,
	} {
		r := NewReader([]byte(doc))
		var err error
		for err == nil {
			_, err = r.Next()
		}
		assert.ErrorIs(t, err, ErrInvalidJSON, "doc %q", doc)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(` {"a":[1,{"b":null}]} `)))
	assert.True(t, Valid([]byte(`"x"`)))
	assert.False(t, Valid([]byte(`{"a":[1,}`)))
	assert.False(t, Valid(nil))
}

func TestFromJSON_deepNesting(t *testing.T) {
	const depth = 100_000
	doc := strings.Repeat(`{"n":`, depth) + "1" + strings.Repeat("}", depth)

	start := time.Now()
	v, err := FromJSONString(doc)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, KindObject, v.Kind())

	_, err = FromJSONString(strings.Repeat("[", depth) + strings.Repeat("]", depth-1))
	assert.ErrorIs(t, err, ErrInvalidJSON)
}
