package validator

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrEmptyCommand is returned for empty or whitespace-only input
	ErrEmptyCommand = errors.New("empty command")
	// ErrUnbalancedQuotes is returned when a quote is opened but never closed
	ErrUnbalancedQuotes = errors.New("malformed quoting")
)

// Tokenize splits a command line into tokens the way a POSIX shell would for
// plain words: whitespace separates tokens, single quotes are literal, double
// quotes honour backslash escapes of ", \, $ and backtick, and adjacent quoted
// segments join into one token. No expansion is performed.
func Tokenize(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyCommand
	}

	var (
		tokens  []string
		cur     strings.Builder
		inToken bool
		quote   rune
	)
	runes := []rune(s)

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch quote {
		case '\'':
			if r == '\'' {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case '"':
			switch {
			case r == '"':
				quote = 0
			case r == '\\' && i+1 < len(runes) && strings.ContainsRune("\"\\$`", runes[i+1]):
				i++
				cur.WriteRune(runes[i])
			default:
				cur.WriteRune(r)
			}
		default:
			switch {
			case unicode.IsSpace(r):
				flush()
			case r == '\'' || r == '"':
				quote = r
				inToken = true
			case r == '\\':
				if i+1 >= len(runes) {
					cur.WriteRune(r)
					inToken = true
					continue
				}
				i++
				if runes[i] == '\n' {
					// line continuation
					continue
				}
				cur.WriteRune(runes[i])
				inToken = true
			default:
				cur.WriteRune(r)
				inToken = true
			}
		}
	}

	if quote != 0 {
		return nil, ErrUnbalancedQuotes
	}
	flush()
	return tokens, nil
}
