package sanitizer

import "github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"

// Verdict represents the outcome of a sanitization pass.
type Verdict int

const (
	// VerdictPass means the value already satisfied every limit.
	VerdictPass Verdict = iota
	// VerdictModify means at least one node was rewritten and the
	// sanitized value should be used in place of the original.
	VerdictModify
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Rule names the policy that rewrote a node.
type Rule string

const (
	RuleArrayCollapsed Rule = "array_collapsed"
	RuleNonFinite      Rule = "non_finite"
	RuleIntegerClamped Rule = "integer_clamped"
	RuleStringTrimmed  Rule = "string_truncated"
	RuleDepthExceeded  Rule = "depth_exceeded"
)

// Finding describes one rewritten node.
type Finding struct {
	Path   string // JSONPath-like location, "$" is the root
	Rule   Rule
	Detail string
}

// Result is the outcome of Process.
type Result struct {
	Verdict  Verdict
	Value    value.Value
	Findings []Finding
}

// Counts tallies findings per rule.
func (r Result) Counts() map[Rule]int {
	counts := make(map[Rule]int, len(r.Findings))
	for _, f := range r.Findings {
		counts[f.Rule]++
	}
	return counts
}
