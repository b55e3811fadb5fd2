package middleware

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"thr_1", "msg_0190c2d4-8e1f-7a3b-9c5d-1e2f3a4b5c6d", strings.Repeat("a", 128)} {
		if err := ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) = %v", id, err)
		}
	}
	for _, id := range []string{"", "a b", "../etc", strings.Repeat("a", 129), "thr.1"} {
		if err := ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) accepted", id)
		}
	}
}

func TestValidateMessageContent(t *testing.T) {
	t.Parallel()

	if err := ValidateMessageContent("hello"); err != nil {
		t.Fatalf("valid content: %v", err)
	}
	for name, content := range map[string]string{
		"empty":   "",
		"too big": strings.Repeat("x", 100001),
		"utf8":    string([]byte{0xff, 0xfe}),
	} {
		if err := ValidateMessageContent(content); err == nil {
			t.Errorf("%s accepted", name)
		}
	}
}

func TestValidatePersonality(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"", "crisp", "clear", "chatty"} {
		if err := ValidatePersonality(p); err != nil {
			t.Errorf("ValidatePersonality(%q) = %v", p, err)
		}
	}
	if err := ValidatePersonality("grumpy"); err == nil {
		t.Error("unknown personality accepted")
	}
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"1", 1, false},
		{"100", 100, false},
		{"0", 0, true},
		{"101", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, %v", tt.raw, got, err)
		}
	}
}
