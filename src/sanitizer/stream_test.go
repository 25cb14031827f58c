package sanitizer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

func deepObjectJSON(depth int) string {
	return strings.Repeat(`{"n":`, depth) + "1" + strings.Repeat("}", depth)
}

func TestProcessJSON_matchesProcess(t *testing.T) {
	docs := []string{
		`{"array":[1,2,3,4,5],"big_int":999999999999,"long_str":"` + strings.Repeat("x", 300) + `"}`,
		`[1,[2,3],{"a":4}]`,
		`"plain"`,
		`1e400`,
		`null`,
		`{"a":{"b":{"c":{"d":[1]}}},"cost usd":-5e10,"z":true}`,
		`{"a":{"b":{"_depth_exceeded":2}},"n":99999999999999999999999}`,
		`{"a":{"b":{"_depth_exceeded":3}}}`,
		deepObjectJSON(100),
	}
	limits := []Limits{
		DefaultLimits(),
		{MaxStringLength: 3, MaxInteger: 3, MaxDepth: 2},
		{MaxStringLength: 0, MaxInteger: 1, MaxDepth: 1},
	}

	for _, l := range limits {
		s := New(l)
		for _, doc := range docs {
			decoded, err := value.FromJSONString(doc)
			require.NoError(t, err)
			want := s.Process(decoded)

			got, err := s.ProcessJSON([]byte(doc))
			require.NoError(t, err)

			assertValue(t, want.Value, got.Value)
			assert.Equal(t, want.Verdict, got.Verdict, "limits %+v, doc %.40s", l, doc)
			assert.Equal(t, want.Findings, got.Findings, "limits %+v, doc %.40s", l, doc)
		}
	}
}

func TestProcessJSON_invalid(t *testing.T) {
	s := New(DefaultLimits())
	for _, doc := range []string{
		``,
		`   `,
		`{"a":[1,2}`,
		`[1 2]`,
		`{"a" 1}`,
		`{1:2}`,
		`[1,]`,
		`{"a":1,}`,
		`01`,
		`{"a":1}x`,
		`{"a":"\q"}`,
		`[[[[`,
	} {
		_, err := s.ProcessJSON([]byte(doc))
		assert.ErrorIs(t, err, value.ErrInvalidJSON, "doc %q", doc)
	}
}

func TestProcessJSON_deepNestingIsLinear(t *testing.T) {
	const depth = 100_000
	s := New(DefaultLimits())

	docs := map[string]string{
		"objects":        deepObjectJSON(depth),
		"arrays":         strings.Repeat("[", depth) + strings.Repeat("]", depth),
		"arrayInObjects": `{"a":` + strings.Repeat("[", depth) + strings.Repeat("]", depth) + `}`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			res, err := s.ProcessJSON([]byte(doc))
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 5*time.Second)
			assert.Equal(t, VerdictModify, res.Verdict)
		})
	}
}

func TestProcessJSON_depthMarkerInInputIsClean(t *testing.T) {
	s := New(Limits{MaxStringLength: 10, MaxInteger: 10, MaxDepth: 2})

	res, err := s.ProcessJSON([]byte(`{"a":{"b":{ "_depth_exceeded" : 2 }}}`))
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, res.Verdict)

	res, err = s.ProcessJSON([]byte(`{"a":{"b":{"_depth_exceeded":2,"x":1}}}`))
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "$.a.b", res.Findings[0].Path)
	assert.Equal(t, RuleDepthExceeded, res.Findings[0].Rule)
}
