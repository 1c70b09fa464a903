package validator

import "strings"

// unsafeConstructs are shell chaining, piping, redirection and substitution
// sequences. Longer sequences come first so "&&" is not also read as "&".
var unsafeConstructs = []string{"&&", "||", "$(", ";", "|", ">", "<", "`"}

// inDoubleQuotes lists the constructs a shell still interprets inside "..."
var inDoubleQuotes = map[string]bool{"`": true, "$(": true}

// findUnsafe returns each distinct unsafe construct present in raw, in order of
// first appearance. Text inside single quotes is literal and skipped; inside
// double quotes only command substitution counts.
func findUnsafe(raw string) []string {
	var found []string
	seen := make(map[string]bool)
	runes := []rune(raw)
	var quote rune

	record := func(c string) {
		if !seen[c] {
			seen[c] = true
			found = append(found, c)
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote == '\'' {
			if r == '\'' {
				quote = 0
			}
			continue
		}
		if r == '\\' {
			i++
			continue
		}
		if quote == 0 && (r == '\'' || r == '"') {
			quote = r
			continue
		}
		if quote == '"' && r == '"' {
			quote = 0
			continue
		}

		rest := string(runes[i:])
		for _, c := range unsafeConstructs {
			if !strings.HasPrefix(rest, c) {
				continue
			}
			if quote == '"' && !inDoubleQuotes[c] {
				break
			}
			record(c)
			i += len([]rune(c)) - 1
			break
		}
	}
	return found
}
