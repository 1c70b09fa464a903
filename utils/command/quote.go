package command

import (
	"regexp"
	"strings"
)

// safeToken matches tokens a POSIX shell passes through unchanged
var safeToken = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote renders a single token so that a POSIX shell, or validator.Tokenize,
// reads it back as exactly one argument. It is the only place that quotes.
func Quote(token string) string {
	if token == "" {
		return "''"
	}
	if safeToken.MatchString(token) {
		return token
	}
	return "'" + strings.ReplaceAll(token, "'", `'\''`) + "'"
}

// Join quotes every token and joins them with single spaces
func Join(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = Quote(t)
	}
	return strings.Join(quoted, " ")
}
