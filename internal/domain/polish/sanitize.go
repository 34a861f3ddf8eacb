package polish

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Limits bounds the size of text leaving the client, in code points.
type Limits struct {
	MaxInputLength       int
	MaxInstructionLength int
}

// DefaultLimits returns the shipped bounds (10000 / 1000).
func DefaultLimits() Limits {
	return Limits{MaxInputLength: 10000, MaxInstructionLength: 1000}
}

// stripped reports whether r is a control character removed by Sanitize.
// Tab (0x09), newline (0x0A) and carriage return (0x0D) survive.
func stripped(r rune) bool {
	switch {
	case r <= 0x08, r == 0x0B, r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

// Sanitize removes control characters that could confuse the downstream
// prompt envelope. It is not HTML escaping: printable text is untouched and
// invalid UTF-8 bytes are copied through unchanged.
func Sanitize(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < utf8.RuneSelf && stripped(rune(s[i])) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		// Stripped characters are all ASCII, so multi-byte sequences and
		// stray continuation bytes are copied verbatim.
		if c < utf8.RuneSelf && stripped(rune(c)) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Validate checks both fields against limits before any network attempt.
func Validate(inputText, customInstruction string, limits Limits) error {
	if limits.MaxInputLength > 0 && utf8.RuneCountInString(inputText) > limits.MaxInputLength {
		return NewError(KindTooLong,
			fmt.Sprintf("Input too long. Maximum %d characters.", limits.MaxInputLength))
	}
	if limits.MaxInstructionLength > 0 && utf8.RuneCountInString(customInstruction) > limits.MaxInstructionLength {
		return NewError(KindTooLong,
			fmt.Sprintf("Custom instruction too long. Maximum %d characters.", limits.MaxInstructionLength))
	}
	return nil
}
