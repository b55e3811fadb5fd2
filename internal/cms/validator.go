package cms

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding about a query.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// ValidationResult is the outcome of Validate. A query may only be sent
// when both Valid and Safe hold.
type ValidationResult struct {
	Valid       bool         `json:"valid"`
	Safe        bool         `json:"safe"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// OK reports whether the query may be executed.
func (r ValidationResult) OK() bool { return r.Valid && r.Safe }

// Warnings returns the non-fatal diagnostics.
func (r ValidationResult) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

func (r *ValidationResult) fail(code, message string) {
	r.Valid = false
	r.Safe = false
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityError, Code: code, Message: message})
}

func (r *ValidationResult) warn(code, message string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Severity: SeverityWarning, Code: code, Message: message})
}

var dangerousPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`@\[`), "parent attribute access"},
	{regexp.MustCompile(`(?i)\bparams\.`), "direct params access"},
	{regexp.MustCompile(`(?i)\bsecrets?\b`), "secret reference"},
	{regexp.MustCompile(`(?i)\bconfig\b`), "config reference"},
}

var (
	// A quoted literal compared against another quoted literal.
	hardcodedComparison = regexp.MustCompile(`"[^"]*"\s*(==|!=|contains|in)\s*"[^"]*"`)
	// A projection assigning a literal string to a literal key.
	hardcodedObject = regexp.MustCompile(`\{[^}]*"[^"]*\s*:\s*"[^"]*"[^}]*\}`)
)

const (
	maxNesting = 5
	maxPipes   = 10
)

// Validate checks a GROQ query for injection patterns and common
// performance problems.
func Validate(query string) ValidationResult {
	result := ValidationResult{Valid: true, Safe: true}

	for _, p := range dangerousPatterns {
		if p.re.MatchString(query) {
			result.fail("dangerous_pattern", "dangerous pattern detected: "+p.name)
		}
	}

	if strings.Contains(query, "/*") || strings.Contains(query, "*/") {
		result.fail("comment_syntax", "comment syntax detected")
	}

	if depth := nestingDepth(query); depth > maxNesting {
		result.warn("deep_nesting", fmt.Sprintf("nesting level %d, consider simplifying the query", depth))
	}

	if strings.Count(query, "|") > maxPipes {
		result.warn("many_pipes", "high number of pipe operations")
	}

	if !strings.ContainsAny(query, "*_") {
		result.warn("no_collection", "query does not read from a collection")
	}

	if hardcodedComparison.MatchString(query) || hardcodedObject.MatchString(query) {
		result.warn("hardcoded_data", "query may contain hardcoded data")
	}

	if strings.Count(query, "*") > 1 {
		result.warn("multiple_wildcards", "multiple wildcard selections")
	}

	return result
}

func nestingDepth(query string) int {
	depth, deepest := 0, 0
	for _, c := range query {
		switch c {
		case '{':
			depth++
			deepest = max(deepest, depth)
		case '}':
			depth--
		}
	}
	return deepest
}
