package guard

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultMaxInputLength = 1200

// Sanitizer normalizes raw user input and enforces the input-length ceiling.
type Sanitizer struct {
	maxLength int
}

func NewSanitizer(maxLength int) *Sanitizer {
	if maxLength <= 0 {
		maxLength = defaultMaxInputLength
	}
	return &Sanitizer{maxLength: maxLength}
}

// MaxLength returns the configured input ceiling in characters.
func (s *Sanitizer) MaxLength() int { return s.maxLength }

// Sanitize strips NUL bytes and non-printable characters (newline and tab
// excepted) and trims surrounding whitespace. It returns ErrEmptyInput when
// nothing remains and an InputTooLongError when the result exceeds the
// ceiling.
func (s *Sanitizer) Sanitize(input string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == 0 || !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, input)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", ErrEmptyInput
	}
	if n := utf8.RuneCountInString(cleaned); n > s.maxLength {
		return "", &InputTooLongError{Length: n, Limit: s.maxLength}
	}
	return cleaned, nil
}

// NormalizeQuery canonicalizes a query for cache keying: trim, lowercase,
// collapse internal whitespace runs to single spaces.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
