package sanitizer

import (
	"errors"
	"fmt"
	"io"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

// maxMarkerSpan bounds how much of a skipped object is decoded to tell
// whether it already is the depth marker.
const maxMarkerSpan = 128

// ProcessJSON is Process over an encoded document. Parts that sanitizing
// discards are never decoded: arrays are counted and skipped, and objects
// past MaxDepth are skipped whole. Work is linear in len(data) whatever the
// nesting. Malformed input yields an error wrapping value.ErrInvalidJSON.
func (s *Sanitizer) ProcessJSON(data []byte) (Result, error) {
	type jsonFrame struct {
		out  []value.Member
		key  string
		path string
	}

	var (
		findings []Finding
		stack    []jsonFrame
		root     value.Value
	)
	emit := func(key string, v value.Value) {
		if len(stack) == 0 {
			root = v
			return
		}
		top := &stack[len(stack)-1]
		top.out = append(top.out, value.Member{Key: key, Value: v})
	}

	r := value.NewReader(data)
	for {
		t, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}

		if t.Kind == value.TokenEndObject {
			done := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			emit(done.key, value.Object(done.out...))
			continue
		}

		// The root is depth 0 and stack holds only open objects, so a child
		// of the innermost one sits at depth len(stack).
		path := "$"
		if len(stack) > 0 {
			path = childPath(stack[len(stack)-1].path, t.Key)
		}
		tooDeep := len(stack) > 0 && len(stack) >= s.limits.MaxDepth

		switch t.Kind {
		case value.TokenScalar:
			emit(t.Key, s.leaf(t.Value, path, &findings))

		case value.TokenBeginArray:
			n, err := r.Skip()
			if err != nil {
				return Result{}, err
			}
			if tooDeep {
				findings = append(findings, s.depthFinding(path, value.KindArray))
				emit(t.Key, s.depthMarker)
				continue
			}
			findings = append(findings, Finding{Path: path, Rule: RuleArrayCollapsed, Detail: fmt.Sprintf("array of %d elements", n)})
			emit(t.Key, s.arrayMarker(n))

		case value.TokenBeginObject:
			if !tooDeep {
				stack = append(stack, jsonFrame{key: t.Key, path: path})
				continue
			}
			start := r.Offset() - 1
			if _, err := r.Skip(); err != nil {
				return Result{}, err
			}
			if !s.isDepthMarker(data[start:r.Offset()]) {
				findings = append(findings, s.depthFinding(path, value.KindObject))
			}
			emit(t.Key, s.depthMarker)
		}
	}

	res := Result{Verdict: VerdictPass, Value: root, Findings: findings}
	if len(findings) > 0 {
		res.Verdict = VerdictModify
	}
	return res, nil
}

func (s *Sanitizer) isDepthMarker(raw []byte) bool {
	if len(raw) > maxMarkerSpan {
		return false
	}
	v, err := value.FromJSON(raw)
	return err == nil && value.Equal(v, s.depthMarker)
}
