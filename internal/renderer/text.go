package renderer

import (
	"regexp"
	"strings"
)

// Escaped spellings of ESC/GS/FS/DLE that arrive as plain text, e.g. from a
// template that serialised "\x1b@" literally, followed by the command byte
// and at most one parameter.
var literalControl = regexp.MustCompile(
	`(?i)(?:\\x1[bcd]|\\x10|\\u001[bcd]|\\u0010|\\e|\^\[)(?:@|[a-z!\-] ?(?:\\x[0-9a-f]{2}|\\u00[0-9a-f]{2}|[0-9])?)?`,
)

// Real ESC/GS/FS/DLE command sequences with their parameter byte.
var rawControl = regexp.MustCompile(
	`[\x1b\x1c\x1d\x10](?:@|[A-Za-z!\-][\x00-\x09\x0b-\x1f0-9]?)?`,
)

// Any other C0 control byte except tab and newline, plus DEL.
var strayControl = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)

// SanitizeForThermal strips raw printer control sequences from text. Only
// trailing newlines are added; applying it twice yields the same result.
func SanitizeForThermal(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	for {
		next := literalControl.ReplaceAllString(s, "")
		next = rawControl.ReplaceAllString(next, "")
		next = strayControl.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}

	return strings.TrimRight(s, "\n ") + "\n\n\n"
}

// ContainsControl reports whether text still carries control bytes other
// than tab and newline.
func ContainsControl(text string) bool {
	return rawControl.MatchString(text) || strayControl.MatchString(text)
}
