// Package sanitizer rewrites value trees so that they satisfy a fixed set
// of bounds: no arrays, finite numbers under a ceiling, bounded strings and
// bounded object nesting.
//
// Arrays are never recursed into. Each one collapses to
// {"_array_length": N} regardless of contents, keeping only the element
// count (itself clamped to MaxInteger). NaN and ±Inf become 0, numbers above MaxInteger are
// clamped to it (there is no floor), and strings longer than
// MaxStringLength runes are cut to that many runes. Objects keep their keys
// and order and have each value sanitized in turn.
//
// Traversal uses an explicit stack instead of Go recursion. Objects and
// arrays at depth MaxDepth or deeper (the root is depth 0) are replaced by
// {"_depth_exceeded": MaxDepth}, again clamped to MaxInteger. Every output
// is therefore a fixed point: sanitizing it again changes nothing.
package sanitizer

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

// Sanitizer applies Limits to value trees. It holds no mutable state and
// is safe for concurrent use.
type Sanitizer struct {
	limits      Limits
	depthMarker value.Value
}

// New creates a Sanitizer. Out-of-range limits fall back to the defaults.
func New(limits Limits) *Sanitizer {
	limits = limits.normalize()
	return &Sanitizer{
		limits:      limits,
		depthMarker: value.Object(value.M(DepthExceededKey, value.Int(min(int64(limits.MaxDepth), limits.MaxInteger)))),
	}
}

var defaultSanitizer = New(DefaultLimits())

// Sanitize applies the default limits to v.
func Sanitize(v value.Value) value.Value {
	return defaultSanitizer.Sanitize(v)
}

// Limits returns the effective limits.
func (s *Sanitizer) Limits() Limits { return s.limits }

// Sanitize returns a new tree satisfying the limits. It never fails and
// never modifies v.
func (s *Sanitizer) Sanitize(v value.Value) value.Value {
	return s.walk(v, nil)
}

// Process sanitizes v and reports every rewritten node.
func (s *Sanitizer) Process(v value.Value) Result {
	var findings []Finding
	out := s.walk(v, &findings)

	res := Result{Verdict: VerdictPass, Value: out, Findings: findings}
	if len(findings) > 0 {
		res.Verdict = VerdictModify
	}
	return res
}

// Check reports what Sanitize would rewrite in v.
func (s *Sanitizer) Check(v value.Value) []Finding {
	return s.Process(v).Findings
}

type frame struct {
	src   value.Value
	out   []value.Member
	next  int
	depth int
	key   string // key under which the finished object lands in its parent
	path  string
}

func (s *Sanitizer) walk(root value.Value, findings *[]Finding) value.Value {
	if root.Kind() != value.KindObject {
		return s.leaf(root, "$", findings)
	}

	stack := []frame{{src: root, out: make([]value.Member, 0, root.Len()), path: "$"}}
	for {
		top := &stack[len(stack)-1]

		if top.next == top.src.Len() {
			done := value.Object(top.out...)
			key := top.key
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return done
			}
			parent := &stack[len(stack)-1]
			parent.out = append(parent.out, value.Member{Key: key, Value: done})
			continue
		}

		m := top.src.Member(top.next)
		top.next++

		var path string
		if findings != nil {
			path = childPath(top.path, m.Key)
		}

		kind := m.Value.Kind()
		depth := top.depth + 1
		if (kind == value.KindObject || kind == value.KindArray) && depth >= s.limits.MaxDepth {
			if findings != nil && !value.Equal(m.Value, s.depthMarker) {
				*findings = append(*findings, s.depthFinding(path, kind))
			}
			top.out = append(top.out, value.Member{Key: m.Key, Value: s.depthMarker})
			continue
		}

		if kind != value.KindObject {
			top.out = append(top.out, value.Member{Key: m.Key, Value: s.leaf(m.Value, path, findings)})
			continue
		}

		stack = append(stack, frame{
			src:   m.Value,
			out:   make([]value.Member, 0, m.Value.Len()),
			depth: depth,
			key:   m.Key,
			path:  path,
		})
	}
}

// leaf rewrites a single non-object node.
func (s *Sanitizer) leaf(v value.Value, path string, findings *[]Finding) value.Value {
	record := func(rule Rule, format string, args ...any) {
		if findings != nil {
			*findings = append(*findings, Finding{Path: path, Rule: rule, Detail: fmt.Sprintf(format, args...)})
		}
	}

	switch v.Kind() {
	case value.KindArray:
		n := v.Len()
		record(RuleArrayCollapsed, "array of %d elements", n)
		return s.arrayMarker(n)

	case value.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			record(RuleNonFinite, "%v replaced by 0", f)
			return value.Int(0)
		}
		if f > float64(s.limits.MaxInteger) {
			record(RuleIntegerClamped, "%v clamped to %d", f, s.limits.MaxInteger)
			return value.Int(s.limits.MaxInteger)
		}
		return v

	case value.KindInt:
		if n, ok := v.AsInt(); ok {
			if n > s.limits.MaxInteger {
				record(RuleIntegerClamped, "%d clamped to %d", n, s.limits.MaxInteger)
				return value.Int(s.limits.MaxInteger)
			}
			return v
		}
		n, _ := v.AsBig()
		if n.Sign() > 0 {
			record(RuleIntegerClamped, "%s clamped to %d", n, s.limits.MaxInteger)
			return value.Int(s.limits.MaxInteger)
		}
		return v

	case value.KindString:
		str, _ := v.AsString()
		if cut, ok := truncate(str, s.limits.MaxStringLength); ok {
			record(RuleStringTrimmed, "%d characters cut to %d", utf8.RuneCountInString(str), s.limits.MaxStringLength)
			return value.String(cut)
		}
		return v

	case value.KindNull, value.KindBool, value.KindObject:
		return v

	default:
		return v
	}
}

func (s *Sanitizer) arrayMarker(n int) value.Value {
	return value.Object(value.M(ArrayLengthKey, value.Int(min(int64(n), s.limits.MaxInteger))))
}

func (s *Sanitizer) depthFinding(path string, kind value.Kind) Finding {
	return Finding{
		Path:   path,
		Rule:   RuleDepthExceeded,
		Detail: fmt.Sprintf("%s nested deeper than %d", kind, s.limits.MaxDepth),
	}
}

// truncate returns the first n runes of s and whether anything was cut.
func truncate(s string, n int) (string, bool) {
	if len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}

func childPath(parent, key string) string {
	if isIdent(key) {
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}

func isIdent(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
