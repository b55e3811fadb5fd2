package middleware

import (
	"errors"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/capitalize-ai/ai-twin/internal/engine"
)

// MaxPageLimit is the largest page a listing returns.
const MaxPageLimit = 100

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateID validates a client-chosen thread, item or session id.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.New("invalid ID format")
	}
	return nil
}

// ValidatePersonality accepts an empty value or a known personality.
func ValidatePersonality(p string) error {
	if p != "" && !engine.IsPersonality(p) {
		return errors.New("personality must be one of crisp, clear, chatty")
	}
	return nil
}

// ParseLimit parses a page size query value. Empty means the default
// (returned as 0).
func ParseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxPageLimit {
		return 0, errors.New("limit must be between 1 and 100")
	}
	return n, nil
}
