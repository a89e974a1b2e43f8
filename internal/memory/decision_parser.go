package memory

import (
	"fmt"
	"regexp"
	"strings"
)

// ParsedDecision is the (what, why, affects) triple extracted from an
// agent's free-text decision log entry (spec §4.8 log_decision).
type ParsedDecision struct {
	What    string
	Why     string
	Affects string
}

// decisionPattern matches: "I chose X because Y. This affects Z."
// All three fields are required -- spec §4.8: "all three fields are
// required, else fail with MalformedDecision".
var decisionPattern = regexp.MustCompile(`(?is)^\s*I chose\s+(.+?)\s+because\s+(.+?)\.\s*This affects\s+(.+?)\.?\s*$`)

// ErrMalformedDecision is returned when text does not match the fixed
// decision shape.
var ErrMalformedDecision = fmt.Errorf("memory: decision text must match %q", `I chose X because Y. This affects Z.`)

// ParseDecisionText parses an agent's free-text decision log entry into its
// (what, why, affects) parts.
func ParseDecisionText(text string) (*ParsedDecision, error) {
	m := decisionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, ErrMalformedDecision
	}

	what := strings.TrimSpace(m[1])
	why := strings.TrimSpace(m[2])
	affects := strings.TrimSpace(m[3])

	if what == "" || why == "" || affects == "" {
		return nil, ErrMalformedDecision
	}

	return &ParsedDecision{What: what, Why: why, Affects: affects}, nil
}
