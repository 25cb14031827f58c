package message

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/sanitizer"
	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testBuilder() Builder {
	n := 0
	return Builder{
		NewID: func() string {
			n++
			return fmt.Sprintf("msg-%d", n)
		},
		Now: func() time.Time { return fixedTime },
	}
}

func problematicPayload() value.Value {
	return value.Object(
		value.M("array", value.Array(value.Int(1), value.Int(2), value.Int(3), value.Int(4), value.Int(5))),
		value.M("nan", value.Float(math.NaN())),
		value.M("big_int", value.Int(999999999999)),
		value.M("long_str", value.String(strings.Repeat("x", 300))),
	)
}

func TestBuilder_Build(t *testing.T) {
	msg, err := testBuilder().Build(Params{Name: "agent", Role: RoleAssistant, Content: value.String("hi")})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, "agent", msg.Name)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, fixedTime, msg.Timestamp)
	assert.True(t, msg.Metadata.IsNull())
}

func TestBuilder_validation(t *testing.T) {
	_, err := New(Params{Role: RoleUser})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = New(Params{Name: "x", Role: "robot"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestNew_assignsUUID(t *testing.T) {
	a, err := New(Params{Name: "x", Role: RoleUser})
	require.NoError(t, err)
	b, err := New(Params{Name: "x", Role: RoleUser})
	require.NoError(t, err)

	assert.Len(t, a.ID, 36)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestIntercept_enabledSanitizesContent(t *testing.T) {
	ctor := Intercept(testBuilder().Build, Options{Enabled: true})

	msg, err := ctor(Params{Name: "agent", Role: RoleTool, Content: problematicPayload(), Metadata: problematicPayload()})
	require.NoError(t, err)

	want := `{"array":{"_array_length":5},"nan":0,"big_int":2147483647,"long_str":"` + strings.Repeat("x", 200) + `"}`
	assert.Equal(t, want, msg.Content.String())

	// Metadata is not designated by default.
	assert.True(t, value.Equal(problematicPayload(), msg.Metadata))
}

func TestIntercept_metadataField(t *testing.T) {
	ctor := Intercept(testBuilder().Build, Options{
		Enabled: true,
		Fields:  []Field{FieldMetadata},
		Limits:  sanitizer.Limits{MaxStringLength: 2, MaxInteger: 100, MaxDepth: 4},
	})

	msg, err := ctor(Params{
		Name:     "agent",
		Role:     RoleTool,
		Content:  value.String("untouched content"),
		Metadata: value.Object(value.M("tag", value.String("abc")), value.M("n", value.Int(101))),
	})
	require.NoError(t, err)

	content, _ := msg.Content.AsString()
	assert.Equal(t, "untouched content", content)
	assert.Equal(t, `{"tag":"ab","n":100}`, msg.Metadata.String())
}

func TestOptions_Covers(t *testing.T) {
	assert.True(t, Options{Enabled: true}.Covers(FieldContent))
	assert.False(t, Options{Enabled: true}.Covers(FieldMetadata))
	assert.False(t, Options{Enabled: true, Fields: []Field{}}.Covers(FieldContent))
	assert.True(t, Options{Enabled: true, Fields: []Field{FieldMetadata}}.Covers(FieldMetadata))
	assert.False(t, Options{Fields: []Field{FieldContent}}.Covers(FieldContent))
}

func TestIntercept_disabledIsTransparent(t *testing.T) {
	base := testBuilder().Build
	wrapped := Intercept(base, Options{Enabled: false, Fields: []Field{FieldContent, FieldMetadata}})

	assert.Equal(t, reflect.ValueOf(base).Pointer(), reflect.ValueOf(wrapped).Pointer())

	plain, err := testBuilder().Build(Params{Name: "a", Role: RoleUser, Content: problematicPayload()})
	require.NoError(t, err)
	got, err := Intercept(testBuilder().Build, Options{})(Params{Name: "a", Role: RoleUser, Content: problematicPayload()})
	require.NoError(t, err)

	assert.Equal(t, plain.ID, got.ID)
	assert.Equal(t, plain.Content.String(), got.Content.String())
	assert.True(t, value.Equal(plain.Content, got.Content))
}

func TestIntercept_propagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	ctor := Intercept(func(Params) (*Msg, error) { return nil, boom }, Options{Enabled: true})

	_, err := ctor(Params{Name: "x", Role: RoleUser})
	assert.Same(t, boom, err)

	_, err = Intercept(New, Options{Enabled: true})(Params{Role: RoleUser})
	assert.ErrorIs(t, err, ErrMissingName)
}

func TestIntercept_callerPayloadUnchanged(t *testing.T) {
	payload := problematicPayload()
	before := payload.String()

	_, err := Intercept(New, Options{Enabled: true})(Params{Name: "x", Role: RoleUser, Content: payload})
	require.NoError(t, err)

	assert.Equal(t, before, payload.String())
}

func TestIntercept_logsRewrites(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctor := Intercept(New, Options{Enabled: true, Logger: logger})
	_, err := ctor(Params{Name: "x", Role: RoleUser, Content: value.Array()})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sanitized message field")
	assert.Contains(t, buf.String(), "field=content")

	buf.Reset()
	_, err = ctor(Params{Name: "x", Role: RoleUser, Content: value.String("clean")})
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestAnnounce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	assert.False(t, Announce(logger, Options{}, "MCP tool"))
	assert.Empty(t, buf.String())

	assert.True(t, Announce(logger, Options{Enabled: true}, "MCP tool"))
	assert.Contains(t, buf.String(), "[safe_mode] ENABLED: sanitizing all MCP tool data")
	assert.Contains(t, buf.String(), "maxStringLength=200")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestParseField(t *testing.T) {
	f, err := ParseField("metadata")
	require.NoError(t, err)
	assert.Equal(t, FieldMetadata, f)

	_, err = ParseField("headers")
	assert.Error(t, err)
}
