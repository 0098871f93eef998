package guard

import "strings"

// injectionPatterns are matched case-insensitively against sanitized input.
// A hit means the message is trying to override the system instructions and
// must never be forwarded upstream.
var injectionPatterns = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"forget your instructions",
	"override your instructions",
	"you are now",
	"pretend you are",
	"system prompt",
	"reveal your instructions",
}

// InjectionFilter detects prompt-injection attempts with a fixed set of
// substring patterns.
type InjectionFilter struct {
	patterns []string
}

func NewInjectionFilter() *InjectionFilter {
	return &InjectionFilter{patterns: injectionPatterns}
}

// Check returns ErrInjection when the input matches any pattern.
func (f *InjectionFilter) Check(input string) error {
	lower := strings.ToLower(input)
	for _, p := range f.patterns {
		if strings.Contains(lower, p) {
			return ErrInjection
		}
	}
	return nil
}
