package evaluator

import "strings"

// Compare reports whether actual program output matches the expected
// output. At most one trailing newline is stripped from each side
// ("\r\n" counts as one); everything else, including interior
// whitespace and case, must match exactly.
func Compare(actual, expected string) bool {
	return stripTrailingNewline(actual) == stripTrailingNewline(expected)
}

func stripTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
