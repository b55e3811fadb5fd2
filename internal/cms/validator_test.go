package cms

import "testing"

func hasCode(r ValidationResult, code string) bool {
	for _, d := range r.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		query    string
		ok       bool
		wantCode string
	}{
		{"type query", `*[_type == "skill"] | order(percentage desc) {name}`, true, ""},
		{"parent access", `*[_type == "skill"]{ "x": @[0] }`, false, "dangerous_pattern"},
		{"params access", `*[_id == params.id]`, false, "dangerous_pattern"},
		{"secret", `*[_type == "Secrets"]`, false, "dangerous_pattern"},
		{"config", `*[_type == "config"]`, false, "dangerous_pattern"},
		{"block comment", `*[_type == "skill"] /* drop */`, false, "comment_syntax"},
		{"deep nesting", `*[_type == "a"]{a{b{c{d{e{f}}}}}}`, true, "deep_nesting"},
		{"many pipes", `*[_type == "a"]|a|b|c|d|e|f|g|h|i|j|k`, true, "many_pipes"},
		{"no collection", `count(1)`, true, "no_collection"},
		{"hardcoded comparison", `*[_type == "a" && "x" == "y"]`, true, "hardcoded_data"},
		{"multiple wildcards", `*[_type == "a"]{ "b": *[_type == "b"] }`, true, "multiple_wildcards"},
		{"parameter binding", `*[_type == "skill" && category == $category]`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := Validate(tt.query)
			if r.OK() != tt.ok {
				t.Fatalf("OK() = %v, want %v (%+v)", r.OK(), tt.ok, r.Diagnostics)
			}
			if tt.wantCode != "" && !hasCode(r, tt.wantCode) {
				t.Fatalf("missing %s in %+v", tt.wantCode, r.Diagnostics)
			}
		})
	}
}

func TestToolQueriesAreSafe(t *testing.T) {
	t.Parallel()

	for _, q := range []string{profileQuery, profileByTypeQuery, skillsQuery, projectsQuery, experienceQuery, availabilityQuery} {
		if r := Validate(q); !r.OK() {
			t.Errorf("query rejected: %+v\n%s", r.Diagnostics, q)
		}
	}
}

func TestWarningsExcludeErrors(t *testing.T) {
	t.Parallel()

	r := Validate(`*[_type == "config"]{a{b{c{d{e{f}}}}}}`)
	for _, d := range r.Warnings() {
		if d.Severity != SeverityWarning {
			t.Fatalf("Warnings returned %+v", d)
		}
	}
	if len(r.Warnings()) == 0 {
		t.Fatal("expected a nesting warning")
	}
}
